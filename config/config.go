// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

const (
	SourceReviews   = "reviews"
	SourcePurchases = "purchases"
)

// Config is the configuration for the pipeline and the recommender.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Blob     BlobConfig     `mapstructure:"blob"`
	ETL      ETLConfig      `mapstructure:"etl"`
	Model    ModelConfig    `mapstructure:"model"`
	Server   ServerConfig   `mapstructure:"server"`
}

// DatabaseConfig is the configuration for the warehouse.
type DatabaseConfig struct {
	Warehouse   string `mapstructure:"warehouse" validate:"required,data_store"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// BlobConfig is the configuration for the blob store holding CSV sources and snapshots.
type BlobConfig struct {
	URI   string      `mapstructure:"uri" validate:"required"`
	S3    S3Config    `mapstructure:"s3"`
	GCS   GCSConfig   `mapstructure:"gcs"`
	Azure AzureConfig `mapstructure:"azure"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type GCSConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
}

type AzureConfig struct {
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	Endpoint         string `mapstructure:"endpoint"`
	ConnectionString string `mapstructure:"connection_string"`
}

// ETLConfig is the configuration for the cleaning pipeline.
type ETLConfig struct {
	CSVPath    string        `mapstructure:"csv_path"`
	BatchSize  int           `mapstructure:"batch_size" validate:"gt=0"`
	DayFirst   bool          `mapstructure:"day_first"`
	Retries    int           `mapstructure:"retries" validate:"gte=0"`
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
}

// ModelConfig is the configuration for training the item-based recommender.
type ModelConfig struct {
	Source       string        `mapstructure:"source" validate:"oneof=reviews purchases"`
	SnapshotName string        `mapstructure:"snapshot_name" validate:"required"`
	FitPeriod    time.Duration `mapstructure:"fit_period" validate:"gte=0"`
	FitJobs      int           `mapstructure:"fit_jobs" validate:"gt=0"`
}

// ServerConfig is the configuration for the serving node.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	APIKey       string        `mapstructure:"api_key"`
	DefaultN     int           `mapstructure:"default_n" validate:"gte=0"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
	ReloadPeriod time.Duration `mapstructure:"reload_period" validate:"gte=0"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Warehouse: "sqlite://warehouse.db",
		},
		Blob: BlobConfig{
			URI: "file://blob",
		},
		ETL: ETLConfig{
			CSVPath:    "data/customer_shopping_data.csv",
			BatchSize:  1000,
			DayFirst:   true,
			Retries:    1,
			RetryDelay: 5 * time.Second,
		},
		Model: ModelConfig{
			Source:       SourceReviews,
			SnapshotName: "perfume_recommendation_model.bin",
			FitJobs:      1,
		},
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     8080,
			DefaultN: 5,
			CacheTTL: time.Minute,
		},
	}
}

func setDefault() {
	defaultConfig := GetDefaultConfig()
	// [database]
	viper.SetDefault("database.warehouse", defaultConfig.Database.Warehouse)
	viper.SetDefault("database.table_prefix", defaultConfig.Database.TablePrefix)
	// [blob]
	viper.SetDefault("blob.uri", defaultConfig.Blob.URI)
	viper.SetDefault("blob.s3.use_ssl", defaultConfig.Blob.S3.UseSSL)
	// [etl]
	viper.SetDefault("etl.csv_path", defaultConfig.ETL.CSVPath)
	viper.SetDefault("etl.batch_size", defaultConfig.ETL.BatchSize)
	viper.SetDefault("etl.day_first", defaultConfig.ETL.DayFirst)
	viper.SetDefault("etl.retries", defaultConfig.ETL.Retries)
	viper.SetDefault("etl.retry_delay", defaultConfig.ETL.RetryDelay)
	// [model]
	viper.SetDefault("model.source", defaultConfig.Model.Source)
	viper.SetDefault("model.snapshot_name", defaultConfig.Model.SnapshotName)
	viper.SetDefault("model.fit_period", defaultConfig.Model.FitPeriod)
	viper.SetDefault("model.fit_jobs", defaultConfig.Model.FitJobs)
	// [server]
	viper.SetDefault("server.host", defaultConfig.Server.Host)
	viper.SetDefault("server.port", defaultConfig.Server.Port)
	viper.SetDefault("server.api_key", defaultConfig.Server.APIKey)
	viper.SetDefault("server.default_n", defaultConfig.Server.DefaultN)
	viper.SetDefault("server.cache_ttl", defaultConfig.Server.CacheTTL)
	viper.SetDefault("server.reload_period", defaultConfig.Server.ReloadPeriod)
}

type configBinding struct {
	key string
	env string
}

// LoadConfig loads configuration from toml file. Environment variables prefixed by
// SCENTCF_ override values in the file.
func LoadConfig(path string) (*Config, error) {
	// set default config
	setDefault()

	// bind environment bindings
	bindings := []configBinding{
		{"database.warehouse", "SCENTCF_WAREHOUSE"},
		{"database.table_prefix", "SCENTCF_TABLE_PREFIX"},
		{"blob.uri", "SCENTCF_BLOB_URI"},
		{"blob.s3.endpoint", "S3_ENDPOINT"},
		{"blob.s3.access_key_id", "S3_ACCESS_KEY_ID"},
		{"blob.s3.secret_access_key", "S3_SECRET_ACCESS_KEY"},
		{"blob.gcs.credentials_file", "GOOGLE_APPLICATION_CREDENTIALS"},
		{"blob.azure.account_name", "AZURE_STORAGE_ACCOUNT"},
		{"blob.azure.account_key", "AZURE_STORAGE_KEY"},
		{"blob.azure.connection_string", "AZURE_STORAGE_CONNECTION_STRING"},
		{"etl.csv_path", "SCENTCF_CSV_PATH"},
		{"model.source", "SCENTCF_MODEL_SOURCE"},
		{"server.host", "SCENTCF_SERVER_HOST"},
		{"server.port", "SCENTCF_SERVER_PORT"},
		{"server.api_key", "SCENTCF_SERVER_API_KEY"},
	}
	for _, binding := range bindings {
		err := viper.BindEnv(binding.key, binding.env)
		if err != nil {
			return nil, errors.Trace(err)
		}
	}

	// load config file
	if path != "" {
		viper.SetConfigFile(path)
		viper.SetConfigType("toml")
		if err := viper.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}

	// unmarshal config file
	var conf Config
	if err := viper.Unmarshal(&conf); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

var dataStorePrefixes = []string{"sqlite://", "mysql://", "postgres://", "postgresql://"}

// Validate checks the configuration with struct tags.
func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("data_store", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		for _, prefix := range dataStorePrefixes {
			if strings.HasPrefix(s, prefix) {
				return true
			}
		}
		return false
	}); err != nil {
		return errors.Trace(err)
	}
	return validate.Struct(config)
}
