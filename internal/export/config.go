// Package export resolves interchange export settings and writes IFC files.
package export

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Version is an IFC file version.
type Version string

const (
	VersionIFC2x3CV2   Version = "IFC2x3CV2"
	VersionIFC2x3      Version = "IFC2x3"
	VersionIFC2x3COBie Version = "IFC2x3COBie"
	VersionIFC4        Version = "IFC4"
	VersionIFC4RV      Version = "IFC4RV"
	VersionIFC4DTV     Version = "IFC4DTV"
)

var versions = []Version{VersionIFC2x3CV2, VersionIFC2x3, VersionIFC2x3COBie, VersionIFC4, VersionIFC4RV, VersionIFC4DTV}

// Schema returns the FILE_SCHEMA identifier written in the file header.
func (v Version) Schema() string {
	if strings.HasPrefix(string(v), "IFC4") {
		return "IFC4"
	}
	return "IFC2X3"
}

// SiteBasis selects the coordinate basis for site placement.
type SiteBasis string

const (
	SiteShared   SiteBasis = "shared"
	SiteSurvey   SiteBasis = "survey"
	SiteProject  SiteBasis = "project"
	SiteInternal SiteBasis = "internal"
)

var siteBases = []SiteBasis{SiteShared, SiteSurvey, SiteProject, SiteInternal}

// PropertySets selects which property sets are written.
type PropertySets struct {
	Internal    bool `yaml:"internal"`
	Common      bool `yaml:"common"`
	Schedules   bool `yaml:"schedules"`
	UserDefined bool `yaml:"user_defined"`
}

// Intent is what the operator asked for. It is resolved into a Config once
// per document.
type Intent struct {
	Version         Version      `yaml:"version"`
	SpaceBoundaries int          `yaml:"space_boundaries"` // 0 none, 1 first level, 2 second level
	BaseQuantities  bool         `yaml:"base_quantities"`
	PropertySets    PropertySets `yaml:"property_sets"`
	Phase           string       `yaml:"phase"` // "", "last", "first" or a 0-based index
	SiteBasis       SiteBasis    `yaml:"site_basis"`
}

// DefaultIntent exports IFC2x3 Coordination View 2.0 with base quantities
// and common property sets.
func DefaultIntent() Intent {
	return Intent{
		Version:        VersionIFC2x3CV2,
		BaseQuantities: true,
		PropertySets:   PropertySets{Common: true},
		Phase:          "last",
		SiteBasis:      SiteShared,
	}
}

// Validate checks every field of the intent.
func (i Intent) Validate() error {
	var errs []error
	if !slices.Contains(versions, i.Version) {
		errs = append(errs, fmt.Errorf("unknown IFC version %q", i.Version))
	}
	if i.SpaceBoundaries < 0 || i.SpaceBoundaries > 2 {
		errs = append(errs, fmt.Errorf("space boundary level %d out of range 0..2", i.SpaceBoundaries))
	}
	if i.SiteBasis != "" && !slices.Contains(siteBases, i.SiteBasis) {
		errs = append(errs, fmt.Errorf("unknown site basis %q", i.SiteBasis))
	}
	if _, err := parsePhase(i.Phase); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// NoPhase is the PhaseIndex of a config that exports without a phase filter.
const NoPhase = -1

// Config is the canonical export configuration handed to the exporter.
type Config struct {
	Version         Version
	SpaceBoundaries int
	BaseQuantities  bool
	PropertySets    PropertySets
	PhaseIndex      int
	SiteBasis       SiteBasis
}

// Resolve is the only place an Intent becomes a Config. It depends on nothing
// but its arguments: the same intent and phase count always give the same
// config. Phase selectors that do not fit the document fall back to the last
// phase; a document without phases is exported unfiltered.
func Resolve(intent Intent, phaseCount int) Config {
	cfg := Config{
		Version:         intent.Version,
		SpaceBoundaries: min(max(intent.SpaceBoundaries, 0), 2),
		BaseQuantities:  intent.BaseQuantities,
		PropertySets:    intent.PropertySets,
		PhaseIndex:      NoPhase,
		SiteBasis:       intent.SiteBasis,
	}
	if cfg.Version == "" {
		cfg.Version = VersionIFC2x3CV2
	}
	if cfg.SiteBasis == "" {
		cfg.SiteBasis = SiteShared
	}
	if phaseCount <= 0 {
		return cfg
	}
	idx, err := parsePhase(intent.Phase)
	if err != nil || idx == phaseLast || idx >= phaseCount {
		idx = phaseCount - 1
	}
	cfg.PhaseIndex = idx
	return cfg
}

// Options renders the config as the exporter's option bag. Every key is
// always present.
func (c Config) Options() map[string]string {
	phase := "all"
	if c.PhaseIndex != NoPhase {
		phase = strconv.Itoa(c.PhaseIndex)
	}
	return map[string]string{
		"FileVersion":                 string(c.Version),
		"SpaceBoundaries":             strconv.Itoa(c.SpaceBoundaries),
		"ExportBaseQuantities":        strconv.FormatBool(c.BaseQuantities),
		"ExportInternalPropertySets":  strconv.FormatBool(c.PropertySets.Internal),
		"ExportIFCCommonPropertySets": strconv.FormatBool(c.PropertySets.Common),
		"ExportSchedulesAsPsets":      strconv.FormatBool(c.PropertySets.Schedules),
		"ExportUserDefinedPsets":      strconv.FormatBool(c.PropertySets.UserDefined),
		"ActivePhase":                 phase,
		"SitePlacement":               string(c.SiteBasis),
	}
}

const phaseLast = -2

func parsePhase(s string) (int, error) {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "", "last":
		return phaseLast, nil
	case "first":
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid phase selector %q", s)
	}
	return n, nil
}
