package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsZeroPartitions(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.NumPartitions = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresAnticacheDirWhenEnabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Anticache.Enable = true
	cfg.Anticache.Dir = ""
	assert.Error(t, cfg.Validate())
}
