package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEngineValidates(t *testing.T) {
	eng := DefaultEngine()
	require.NoError(t, eng.Validate())
}

func TestValidateRejectsGradeABand(t *testing.T) {
	eng := DefaultEngine()
	eng.Divergence.Grades = append([]GradeBand{{Grade: "A", MaxRMSE: 0.5, MinCorr: 0}}, eng.Divergence.Grades...)
	err := eng.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grade A is reserved")

	eng = DefaultEngine()
	eng.Divergence.Grades = []GradeBand{{Grade: "Z", MaxRMSE: 0.5}}
	assert.Error(t, eng.Validate())
}

func TestValidateTierWeights(t *testing.T) {
	eng := DefaultEngine()
	eng.Horizons[0].BaseWeight += 0.05
	assert.Error(t, eng.Validate())
}
