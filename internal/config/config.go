// Package config centralizes every tunable named in the specification
// (§6), loaded from environment variables with flag overrides in
// cmd/errorengine, following the teacher's flag-with-os.Getenv-default
// idiom (cmd/udp_server/main.go) rather than a config-file/viper layer.
package config

import (
	"os"
	"strconv"
	"time"

	"cep95-engine/internal/geometry"
)

// Calibration holds every algorithm tuning parameter. All fields have the
// spec's defaults (see DefaultCalibration). cmd/errorengine has flags for
// MaxSignificantAnchors, EWMAThreshold, Lambda, StudentTDoF, DeltaR and
// TVis; RSSISignalThresholdDB, ConfidenceScale, CEP95Table and
// MaxProcessingTimeWarn have no flag or environment variable and always
// keep their defaults.
type Calibration struct {
	MaxSignificantAnchors int
	EWMAThreshold         float64
	Lambda                float64
	StudentTDoF           int
	RSSISignalThresholdDB float64 // the 10 dB "within strongest" gate
	ConfidenceScale       float64

	DeltaR float64       // dB, max RSSI delta from strongest for health admission
	TVis   time.Duration // max time since last_seen for health admission

	CEP95Table []geometry.CEP95Point

	MaxProcessingTimeWarn time.Duration
}

// DefaultCalibration returns the spec's §6/§4 defaults.
func DefaultCalibration() Calibration {
	return Calibration{
		MaxSignificantAnchors: 5,
		EWMAThreshold:         8.0,
		Lambda:                0.05,
		StudentTDoF:           5,
		RSSISignalThresholdDB: 10.0,
		ConfidenceScale:       2.0,
		DeltaR:                12.0,
		TVis:                  6000 * time.Millisecond,
		CEP95Table:            geometry.DefaultCEP95Table,
		MaxProcessingTimeWarn: 2 * time.Millisecond,
	}
}

// Resolver holds the anchor-resolution endpoint's connection settings.
type Resolver struct {
	URLTemplate string
	Username    string
	Password    string
	Timeout     time.Duration
}

// DefaultResolver mirrors the original config service's defaults.
func DefaultResolver() Resolver {
	return Resolver{
		URLTemplate: "https://ils-she.ubudu.com/confv1/api/dongles?macAddress={}",
		Username:    "admin",
		Password:    "",
		Timeout:     30 * time.Second,
	}
}

// Bus holds the pub/sub transport's endpoints for fixes-in and
// results-out.
type Bus struct {
	InputAddr  string
	OutputAddr string
}

// DefaultBus returns empty addresses. cmd/errorengine does not use it: its
// -input-addr flag defaults to ":9001", and an empty -output-addr turns
// result publishing off.
func DefaultBus() Bus {
	return Bus{}
}

// EnvOr returns the value of the environment variable name, or fallback if
// unset or empty.
func EnvOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// EnvOrFloat returns the float64 value of the environment variable name, or
// fallback if unset or unparseable.
func EnvOrFloat(name string, fallback float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// EnvOrInt returns the int value of the environment variable name, or
// fallback if unset or unparseable.
func EnvOrInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
