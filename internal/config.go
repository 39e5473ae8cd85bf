package internal

import (
	"fmt"

	"github.com/spf13/viper"
	"github.com/nova-storage/novasql/internal/bufferpool"
	"github.com/nova-storage/novasql/internal/storage"
)

type NovaSqlConfig struct {
	Storage struct {
		Mode     string `mapstructure:"mode"`
		File     string `mapstructure:"file"`
		PageSize int    `mapstructure:"page_size"`
	} `mapstructure:"storage"`
	Server struct {
		Port  int  `mapstructure:"port"`
		Debug bool `mapstructure:"debug"`
	} `mapstructure:"server"`
	BufferPool struct {
		BufferCount              int     `mapstructure:"buffer_count"`
		PartitionCount           int     `mapstructure:"partition_count"`
		BGWriterLRUMaxPages      int     `mapstructure:"bgwriter_lru_max_pages"`
		BGWriterLRUMultiplier    float64 `mapstructure:"bgwriter_lru_multiplier"`
		CheckpointFlushAfter     int     `mapstructure:"checkpoint_flush_after"`
		BGWriterFlushAfter       int     `mapstructure:"bgwriter_flush_after"`
		BackendFlushAfter        int     `mapstructure:"backend_flush_after"`
		EffectiveIOConcurrency   int     `mapstructure:"effective_io_concurrency"`
		MaintenanceIOConcurrency int     `mapstructure:"maintenance_io_concurrency"`
		ZeroDamagedPages         bool    `mapstructure:"zero_damaged_pages"`
		TrackIOTiming            bool    `mapstructure:"track_io_timing"`
		IODirectData             bool    `mapstructure:"io_direct_data"`
	} `mapstructure:"bufferpool"`
}

type Config struct {
	Mode storage.StorageMode
}

// BufferPoolConfig translates the config file's bufferpool section into
// the internal bufferpool.Config shape, leaving unset (<=0) fields to
// bufferpool.Config's own defaults.
func (c *NovaSqlConfig) BufferPoolConfig() bufferpool.Config {
	return bufferpool.Config{
		PageSize:                 c.Storage.PageSize,
		BufferCount:              c.BufferPool.BufferCount,
		PartitionCount:           c.BufferPool.PartitionCount,
		BGWriterLRUMaxPages:      c.BufferPool.BGWriterLRUMaxPages,
		BGWriterLRUMultiplier:    c.BufferPool.BGWriterLRUMultiplier,
		CheckpointFlushAfter:     c.BufferPool.CheckpointFlushAfter,
		BGWriterFlushAfter:       c.BufferPool.BGWriterFlushAfter,
		BackendFlushAfter:        c.BufferPool.BackendFlushAfter,
		EffectiveIOConcurrency:   c.BufferPool.EffectiveIOConcurrency,
		MaintenanceIOConcurrency: c.BufferPool.MaintenanceIOConcurrency,
		ZeroDamagedPages:         c.BufferPool.ZeroDamagedPages,
		TrackIOTiming:            c.BufferPool.TrackIOTiming,
		IODirectData:             c.BufferPool.IODirectData,
	}
}

func LoadConfig(path string) (*NovaSqlConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg NovaSqlConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
