package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/millflow/internal/cutter"
	"github.com/zjrosen/millflow/internal/registry"
	"github.com/zjrosen/millflow/internal/toolpath"
)

func TestTool_RadiusDiameterRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reg := registry.New()

		d := rapid.Float64Range(0.01, 1000).Draw(t, "diameter")
		byDiameter, err := NewTool(reg, "d", map[string]any{"shape": "flat_bottom", "diameter": d})
		if err != nil {
			t.Fatal(err)
		}
		if r, err := byDiameter.Radius(); err != nil || r != d/2 {
			t.Fatalf("diameter %v gave radius %v, %v", d, r, err)
		}

		r := rapid.Float64Range(0.01, 500).Draw(t, "radius")
		byRadius, err := NewTool(reg, "r", map[string]any{"shape": "flat_bottom", "radius": r})
		if err != nil {
			t.Fatal(err)
		}
		if got, err := byRadius.Diameter(); err != nil || got != 2*r {
			t.Fatalf("radius %v gave diameter %v, %v", r, got, err)
		}
	})
}

func TestTool_RadiusPrefersRadius(t *testing.T) {
	tool, err := NewTool(registry.New(), "t1", map[string]any{"shape": "flat_bottom", "radius": 2, "diameter": 10})
	require.NoError(t, err)
	r, err := tool.Radius()
	require.NoError(t, err)
	require.Equal(t, 2.0, r)
}

func TestTool_RadiusMissing(t *testing.T) {
	tool, err := NewTool(registry.New(), "t1", map[string]any{"shape": "flat_bottom"})
	require.NoError(t, err)
	_, err = tool.Radius()
	require.ErrorIs(t, err, ErrMissingAttribute)
	_, err = tool.Diameter()
	require.ErrorIs(t, err, ErrMissingAttribute)
}

func TestTool_Geometry(t *testing.T) {
	reg := registry.New()

	tests := []struct {
		name  string
		attrs map[string]any
		check func(t *testing.T, g cutter.Geometry)
	}{
		{
			name:  "flat bottom",
			attrs: map[string]any{"shape": "flat_bottom", "radius": 3, "height": 20},
			check: func(t *testing.T, g cutter.Geometry) {
				require.IsType(t, &cutter.Cylindrical{}, g)
				require.Equal(t, 3.0, g.Radius())
				require.Equal(t, 20.0, g.Height())
			},
		},
		{
			name:  "ball nose from diameter",
			attrs: map[string]any{"shape": "ball_nose", "diameter": 6},
			check: func(t *testing.T, g cutter.Geometry) {
				require.IsType(t, &cutter.Spherical{}, g)
				require.Equal(t, 3.0, g.Radius())
				require.Equal(t, 10.0, g.Height())
			},
		},
		{
			name:  "torus",
			attrs: map[string]any{"shape": "torus", "radius": 4, "toroid_radius": 1},
			check: func(t *testing.T, g cutter.Geometry) {
				torus, ok := g.(*cutter.Toroidal)
				require.True(t, ok)
				require.Equal(t, 1.0, torus.MinorRadius())
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool, err := NewTool(reg, tt.name, tt.attrs)
			require.NoError(t, err)
			g, err := tool.Geometry()
			require.NoError(t, err)
			tt.check(t, g)
		})
	}
}

func TestTool_GeometryErrors(t *testing.T) {
	reg := registry.New()

	torus, err := NewTool(reg, "torus", map[string]any{"shape": "torus", "radius": 4})
	require.NoError(t, err)
	_, err = torus.Geometry()
	require.ErrorIs(t, err, ErrMissingAttribute)

	drill, err := NewTool(reg, "drill", map[string]any{"shape": "drill", "radius": 1})
	require.NoError(t, err)
	_, err = drill.Geometry()
	require.ErrorIs(t, err, ErrInvalidKey)
	require.Contains(t, err.Error(), "flat_bottom, ball_nose, torus")

	negative, err := NewTool(reg, "neg", map[string]any{"shape": "flat_bottom", "radius": -1})
	require.NoError(t, err)
	_, err = negative.Geometry()
	require.ErrorIs(t, err, cutter.ErrInvalidDimension)
}

func TestTool_MachineSettings(t *testing.T) {
	tool, err := NewTool(registry.New(), "t1", map[string]any{"shape": "flat_bottom", "radius": 1, "feed": 450, "speed": "12000"})
	require.NoError(t, err)

	settings, err := tool.MachineSettings()
	require.NoError(t, err)
	require.Equal(t, []toolpath.MachineSetting{
		{Key: SettingFeedrate, Value: 450},
		{Key: SettingSpindleSpeed, Value: 12000},
	}, settings)
}

func TestTool_Validate(t *testing.T) {
	reg := registry.New()

	ok, err := NewTool(reg, "ok", map[string]any{"shape": "ball_nose", "radius": 1.5})
	require.NoError(t, err)
	require.NoError(t, ok.Validate())

	bad, err := NewTool(reg, "bad", map[string]any{"shape": "drill", "feed": "fast"})
	require.NoError(t, err)
	err = bad.Validate()
	require.ErrorIs(t, err, ErrInvalidKey)
	require.Contains(t, err.Error(), `"feed"`)
	require.Contains(t, err.Error(), `"shape"`)
}
