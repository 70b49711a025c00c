package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"fulfillment/internal/core/application/orchestration"
	"fulfillment/internal/core/domain/model/order"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	EngineInProcess = "inprocess"
	EngineTemporal  = "temporal"
)

// Config is filled by kong from flags and the environment.
type Config struct {
	HTTPPort string `name:"http-port" env:"HTTP_PORT" default:"8080" help:"HTTP listen port."`

	DBHost     string `name:"db-host" env:"DB_HOST" default:"localhost"`
	DBPort     string `name:"db-port" env:"DB_PORT" default:"5432"`
	DBUser     string `name:"db-user" env:"DB_USER" default:"postgres"`
	DBPassword string `name:"db-password" env:"DB_PASSWORD" default:""`
	DBName     string `name:"db-name" env:"DB_NAME" default:"fulfillment"`
	DBSslMode  string `name:"db-sslmode" env:"DB_SSLMODE" default:"disable"`

	Storage string `name:"storage" env:"STORAGE" enum:"memory,postgres" default:"memory" help:"Persistence backend."`
	Engine  string `name:"engine" env:"ENGINE" enum:"inprocess,temporal" default:"inprocess" help:"Orchestration engine."`

	TemporalHost      string `name:"temporal-host" env:"TEMPORAL_HOST" default:"localhost:7233"`
	TemporalNamespace string `name:"temporal-namespace" env:"TEMPORAL_NAMESPACE" default:"default"`
	TemporalTaskQueue string `name:"temporal-task-queue" env:"TEMPORAL_TASK_QUEUE" default:"FULFILLMENT_TASK_QUEUE"`

	MaxDeliveryCapacity int           `name:"max-delivery-capacity" env:"MAX_DELIVERY_CAPACITY" default:"5"`
	ConfirmationTimeout time.Duration `name:"confirmation-timeout" env:"CONFIRMATION_TIMEOUT" default:"30m"`
	CapacityWaitTimeout time.Duration `name:"capacity-wait-timeout" env:"CAPACITY_WAIT_TIMEOUT" default:"30m"`
	StaleReservationAge time.Duration `name:"stale-reservation-age" env:"STALE_RESERVATION_AGE" default:"30m"`

	SweepSchedule     string `name:"sweep-schedule" env:"SWEEP_SCHEDULE" default:"*/5 * * * * *"`
	HeartbeatSchedule string `name:"heartbeat-schedule" env:"HEARTBEAT_SCHEDULE" default:"*/30 * * * * *"`
	ReaperSchedule    string `name:"reaper-schedule" env:"REAPER_SCHEDULE" default:"0 * * * * *"`
	OutboxSchedule    string `name:"outbox-schedule" env:"OUTBOX_SCHEDULE" default:"*/2 * * * * *"`

	StagePlanFile string `name:"stage-plan-file" env:"STAGE_PLAN_FILE" type:"path" help:"YAML file with manual stages and timeouts."`
	AutoStart     bool   `name:"auto-start" env:"AUTO_START" default:"true" help:"Launch the lifecycle on order creation."`
	LogLevel      string `name:"log-level" env:"LOG_LEVEL" enum:"debug,info,warn,error" default:"info"`
}

// DSN builds the postgres connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSslMode)
}

// LoadDotEnv loads .env files into the environment. Missing files are fine;
// variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

type planFile struct {
	ConfirmationTimeout string               `yaml:"confirmationTimeout"`
	Stages              map[string]stageFile `yaml:"stages"`
}

type stageFile struct {
	Manual  bool   `yaml:"manual"`
	Timeout string `yaml:"timeout"`
}

// Plan returns the stage plan. Without a plan file every stage advances
// automatically and confirmations use the configured timeout.
func (c Config) Plan() (orchestration.Plan, error) {
	plan := orchestration.AutomaticPlan()
	plan.ConfirmationTimeout = c.ConfirmationTimeout
	if c.StagePlanFile == "" {
		return plan, nil
	}

	raw, err := os.ReadFile(c.StagePlanFile)
	if err != nil {
		return orchestration.Plan{}, fmt.Errorf("read stage plan: %w", err)
	}
	return ParsePlan(raw, plan)
}

// ParsePlan decodes a YAML stage plan on top of base.
//
//	confirmationTimeout: 45m
//	stages:
//	  COOKING:
//	    manual: true
//	    timeout: 20m
func ParsePlan(raw []byte, base orchestration.Plan) (orchestration.Plan, error) {
	var f planFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return orchestration.Plan{}, fmt.Errorf("decode stage plan: %w", err)
	}

	plan := base
	plan.Manual = make(map[order.Stage]bool)
	plan.Timeouts = make(map[order.Stage]time.Duration)
	for stage, manual := range base.Manual {
		plan.Manual[stage] = manual
	}
	for stage, timeout := range base.Timeouts {
		plan.Timeouts[stage] = timeout
	}

	if f.ConfirmationTimeout != "" {
		d, err := time.ParseDuration(f.ConfirmationTimeout)
		if err != nil {
			return orchestration.Plan{}, fmt.Errorf("confirmationTimeout: %w", err)
		}
		plan.ConfirmationTimeout = d
	}

	for name, s := range f.Stages {
		stage, err := order.ParseStage(name)
		if err != nil {
			return orchestration.Plan{}, err
		}
		if !stage.IsWorking() {
			return orchestration.Plan{}, fmt.Errorf("stage %s cannot require confirmation", name)
		}
		plan.Manual[stage] = s.Manual
		if s.Timeout != "" {
			d, err := time.ParseDuration(s.Timeout)
			if err != nil {
				return orchestration.Plan{}, fmt.Errorf("stages.%s.timeout: %w", name, err)
			}
			plan.Timeouts[stage] = d
		}
	}
	return plan, nil
}
