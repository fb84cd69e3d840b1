package langdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	d := New(10)
	got, ok := d.Detect("Proposal for provisions on the design of plastic products and their recyclability")
	assert.True(t, ok)
	assert.Equal(t, "English", got)

	got, ok = d.Detect("Proposition relative aux dispositions sur la conception des produits en plastique")
	assert.True(t, ok)
	assert.Equal(t, "French", got)

	_, ok = d.Detect("Japan")
	assert.False(t, ok)
}

func TestFillKeepsExplicitLanguages(t *testing.T) {
	t.Parallel()

	d := New(10)
	assert.Equal(t, []string{"Spanish"}, d.Fill([]string{"Spanish"}, "Proposal for provisions on the design of plastic products"))
	assert.Equal(t, []string{"English"}, d.Fill(nil, "", "Proposal for provisions on the design of plastic products"))
	assert.Empty(t, d.Fill(nil, "x"))
}

func TestNilDetector(t *testing.T) {
	t.Parallel()

	var d *Detector
	_, ok := d.Detect("Proposal for provisions on the design of plastic products")
	assert.False(t, ok)
	assert.Nil(t, d.Fill(nil, "Proposal for provisions on the design of plastic products"))
}
