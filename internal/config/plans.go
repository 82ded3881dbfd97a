package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Plan describes entitlement limits for one subscription tier.
type Plan struct {
	Code        string `mapstructure:"code" json:"code"`
	Name        string `mapstructure:"name" json:"name"`
	MaxProjects int    `mapstructure:"maxProjects" json:"max_projects"`
	MaxMembers  int    `mapstructure:"maxMembers" json:"max_members"`
}

// PlanCatalog is the full set of plans an organization can be on.
type PlanCatalog struct {
	Plans []Plan `mapstructure:"plans" json:"plans"`
}

const DefaultPlanCode = "free"

func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Plans: []Plan{
			{Code: "free", Name: "Free", MaxProjects: 3, MaxMembers: 5},
			{Code: "team", Name: "Team", MaxProjects: 25, MaxMembers: 50},
			{Code: "enterprise", Name: "Enterprise", MaxProjects: 0, MaxMembers: 0},
		},
	}
}

// Lookup returns the plan for code, falling back to the free plan.
func (c PlanCatalog) Lookup(code string) Plan {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		code = DefaultPlanCode
	}
	var fallback Plan
	for _, plan := range c.Plans {
		if plan.Code == code {
			return plan
		}
		if plan.Code == DefaultPlanCode {
			fallback = plan
		}
	}
	return fallback
}

type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

func NewPlanCatalogHolder() (*PlanCatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/beacon/config") // Volume-mounted config
	v.AddConfigPath("/etc/beacon")            // System config
	v.AddConfigPath(".")                      // Current directory (dev mode)

	v.SetEnvPrefix("BEACON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// if config file not found, use defaults
		defaults := DefaultPlanCatalog()
		v.SetDefault("catalog.plans", defaults.Plans)
	}

	var catalog PlanCatalog
	if err := v.UnmarshalKey("catalog", &catalog); err != nil {
		return nil, err
	}
	if err := validatePlanCatalog(catalog); err != nil {
		return nil, err
	}

	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)

	// 🔥 HOT RELOAD
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanCatalog
		if err := v.UnmarshalKey("catalog", &updated); err != nil {
			log.Printf("[plan-config] reload failed: %v", err)
			return
		}
		if err := validatePlanCatalog(updated); err != nil {
			log.Printf("[plan-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[plan-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPlanCatalogHolder wraps a fixed catalog with no file watching.
// Used by tests and by callers that only need the compiled-in defaults.
func NewStaticPlanCatalogHolder(catalog PlanCatalog) (*PlanCatalogHolder, error) {
	if err := validatePlanCatalog(catalog); err != nil {
		return nil, err
	}
	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)
	return holder, nil
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

func validatePlanCatalog(catalog PlanCatalog) error {
	if len(catalog.Plans) == 0 {
		return errors.New("catalog.plans cannot be empty")
	}
	seen := make(map[string]struct{}, len(catalog.Plans))
	hasDefault := false
	for _, plan := range catalog.Plans {
		code := strings.ToLower(strings.TrimSpace(plan.Code))
		if code == "" {
			return errors.New("catalog.plans entries require a code")
		}
		if _, ok := seen[code]; ok {
			return errors.New("catalog.plans contains duplicate code " + code)
		}
		seen[code] = struct{}{}
		if code == DefaultPlanCode {
			hasDefault = true
		}
	}
	if !hasDefault {
		return errors.New("catalog.plans must include the free plan")
	}
	return nil
}
