package config

import (
	"fmt"
	"time"
)

// App is the broker's strongly-typed runtime configuration, derived from
// RawConfig once (spec.md §6). Every broker component is constructed
// from App, never from RawConfig directly.
type App struct {
	SubmitsDir           string
	BuildNamespace       string
	ClusterConf          string
	CallbackURLPrefix    string
	FrontEndSuccessURL   string
	FrontEndErrorURL     string
	SharedSecretFrontEnd string
	SharedSecretBroker   string
	TaskSubmitTimeout    time.Duration
	JanitorInterval      time.Duration
	ForceRebuildPackages bool
	ActiveWait           bool

	ClusterClientBinaryURL string
	ClusterJudgeBinaryURL  string

	Server      ServerConfig
	BuildLimits BuildLimitsConfig

	AuditDB string
}

// ToApp converts the validated RawConfig into App, parsing its duration
// strings.
func (c RawConfig) ToApp() (App, error) {
	timeout, err := time.ParseDuration(c.TaskSubmitTimeout)
	if err != nil {
		return App{}, fmt.Errorf("parsing task_submit_timeout: %w", err)
	}
	interval, err := time.ParseDuration(c.JanitorInterval)
	if err != nil {
		return App{}, fmt.Errorf("parsing janitor_interval: %w", err)
	}
	return App{
		SubmitsDir:             c.SubmitsDir,
		BuildNamespace:         c.BuildNamespace,
		ClusterConf:            c.ClusterConf,
		CallbackURLPrefix:      c.CallbackURLPrefix,
		FrontEndSuccessURL:     c.FrontEndSuccessURL,
		FrontEndErrorURL:       c.FrontEndErrorURL,
		SharedSecretFrontEnd:   c.SharedSecretFrontEnd,
		SharedSecretBroker:     c.SharedSecretBroker,
		TaskSubmitTimeout:      timeout,
		JanitorInterval:        interval,
		ForceRebuildPackages:   c.ForceRebuildPackages,
		ActiveWait:             c.ActiveWait,
		ClusterClientBinaryURL: c.ClusterClientBinaryURL,
		ClusterJudgeBinaryURL:  c.ClusterJudgeBinaryURL,
		Server:                 c.Server,
		BuildLimits:            c.BuildLimits,
		AuditDB:                c.AuditDB,
	}, nil
}
