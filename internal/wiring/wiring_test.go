package wiring

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyrange/gic"
)

const sampleConfig = `
interrupts:
  - name: uart0
    class: spi
    index: 1
  - name: timer
    class: ppi
    index: 14
    trigger: level
  - name: virtio-blk
    class: spi
    index: 16
    trigger: edge
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	require.Len(t, cfg.Lines, 3)

	assert.Equal(t, "uart0", cfg.Lines[0].Name)
	assert.Equal(t, gic.SPI(1), cfg.Lines[0].ID)
	assert.Equal(t, gic.TriggerLevel, cfg.Lines[0].Trigger, "trigger should default to level")

	assert.Equal(t, gic.PPI(14), cfg.Lines[1].ID)

	assert.Equal(t, gic.SPI(16), cfg.Lines[2].ID)
	assert.Equal(t, gic.TriggerEdge, cfg.Lines[2].Trigger)
}

func TestParseRejectsMalformedConfig(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"empty", `interrupts: []`},
		{"unnamed line", `
interrupts:
  - class: spi
    index: 1
`},
		{"unknown class", `
interrupts:
  - name: x
    class: lpi
    index: 0
`},
		{"index out of range", `
interrupts:
  - name: x
    class: ppi
    index: 16
`},
		{"spi index out of range", `
interrupts:
  - name: x
    class: spi
    index: 988
`},
		{"unknown trigger", `
interrupts:
  - name: x
    class: spi
    index: 0
    trigger: both
`},
		{"duplicate identifier", `
interrupts:
  - name: a
    class: spi
    index: 3
  - name: b
    class: spi
    index: 3
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			assert.Error(t, err)
		})
	}
}

// recordingController captures the calls Apply makes.
type recordingController struct {
	triggers map[gic.IntID]gic.TriggerMode
	enabled  []gic.IntID
}

func (r *recordingController) InitPrimary() {}
func (r *recordingController) PerCPUInit()  {}
func (r *recordingController) SetTrigger(id gic.IntID, mode gic.TriggerMode) {
	if r.triggers == nil {
		r.triggers = make(map[gic.IntID]gic.TriggerMode)
	}
	r.triggers[id] = mode
}
func (r *recordingController) EnableInterrupt(id gic.IntID)  { r.enabled = append(r.enabled, id) }
func (r *recordingController) DisableInterrupt(id gic.IntID) {}
func (r *recordingController) GetAndAcknowledgeInterrupt() (gic.IntID, bool) {
	return 0, false
}
func (r *recordingController) EndInterrupt(id gic.IntID) {}

var _ gic.Controller = (*recordingController)(nil)

func TestApply(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	ctrl := &recordingController{}
	cfg.Apply(slog.Default(), ctrl)

	assert.ElementsMatch(t,
		[]gic.IntID{gic.SPI(1), gic.PPI(14), gic.SPI(16)},
		ctrl.enabled)
	assert.Equal(t, gic.TriggerEdge, ctrl.triggers[gic.SPI(16)])
	assert.Equal(t, gic.TriggerLevel, ctrl.triggers[gic.SPI(1)])
}

func TestApplySkipsSGITrigger(t *testing.T) {
	cfg, err := Parse([]byte(`
interrupts:
  - name: resched
    class: sgi
    index: 0
`))
	require.NoError(t, err)

	ctrl := &recordingController{}
	cfg.Apply(nil, ctrl)

	assert.Empty(t, ctrl.triggers, "SGI configuration is fixed and must not be written")
	assert.Equal(t, []gic.IntID{gic.SGI(0)}, ctrl.enabled)
}
