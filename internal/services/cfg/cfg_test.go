package cfg_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/ports/srv"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/services/cfg"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/simkernel"
)

func open(t *testing.T, layout simkernel.Layout) *cfg.Client {
	t.Helper()
	k, err := simkernel.New(simkernel.WithLayout(layout))
	require.NoError(t, err)
	t.Cleanup(k.Close)

	c := k.NewProcess(t.Name()).Attach()
	s, err := srv.Connect(c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	cl, err := cfg.Open(c, s)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })
	return cl
}

func TestOpenFallsBackToUserService(t *testing.T) {
	cl := open(t, simkernel.DefaultLayout())
	assert.Equal(t, "cfg:u", cl.Name())
}

func TestConsoleInfo(t *testing.T) {
	tests := []struct {
		name    string
		console simkernel.Console
		region  cfg.Region
		model   cfg.SystemModel
		is2DS   bool
		usa     bool
	}{
		{"default", simkernel.DefaultLayout().Console, cfg.Europe, cfg.ModelKTR, false, false},
		{"american 2ds", simkernel.Console{Region: "america", Model: "ftr", Is2DS: true, CanadaOrUSA: true}, cfg.America, cfg.ModelFTR, true, true},
		{"japanese original", simkernel.Console{Region: "japan", Model: "ctr"}, cfg.Japan, cfg.ModelCTR, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout := simkernel.DefaultLayout()
			layout.Console = tt.console
			cl := open(t, layout)

			region, err := cl.SecureInfoRegion()
			require.NoError(t, err)
			assert.Equal(t, tt.region, region)

			model, err := cl.SystemModel()
			require.NoError(t, err)
			assert.Equal(t, tt.model, model)

			is2DS, err := cl.Is2DS()
			require.NoError(t, err)
			assert.Equal(t, tt.is2DS, is2DS)

			usa, err := cl.IsCanadaOrUSA()
			require.NoError(t, err)
			assert.Equal(t, tt.usa, usa)
		})
	}
}

func TestConsoleUniqueHash(t *testing.T) {
	cl := open(t, simkernel.DefaultLayout())

	a, err := cl.GenerateConsoleUniqueHash(0x1234)
	require.NoError(t, err)
	again, err := cl.GenerateConsoleUniqueHash(0x1234)
	require.NoError(t, err)
	assert.Equal(t, a, again)
	assert.NotZero(t, a>>32, "both halves carry hash bits")

	b, err := cl.GenerateConsoleUniqueHash(0x1235)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	high, err := cl.GenerateConsoleUniqueHash(0xFFF01234)
	require.NoError(t, err)
	assert.Equal(t, a, high, "only the low 20 salt bits are used")

	layout := simkernel.DefaultLayout()
	layout.Console.HashSeed++
	other, err := open(t, layout).GenerateConsoleUniqueHash(0x1234)
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestNames(t *testing.T) {
	assert.Equal(t, "taiwan", cfg.Taiwan.String())
	assert.Equal(t, "region(9)", cfg.Region(9).String())
	assert.Equal(t, "jan", cfg.ModelJAN.String())
	assert.Equal(t, "model(8)", cfg.SystemModel(8).String())
}
