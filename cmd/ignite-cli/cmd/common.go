package cmd

import (
	"context"
	"time"

	"github.com/spf13/viper"

	"github.com/ignitedb/ignite/pkg/ignite"
	"github.com/ignitedb/ignite/pkg/options"
)

// openInstance builds an ignite.Instance from whatever combination of
// flags, config file, and environment variables viper resolved.
func openInstance(ctx context.Context) (*ignite.Instance, error) {
	var opts []options.OptionFunc
	if v := viper.GetString("data-dir"); v != "" {
		opts = append(opts, options.WithDataDir(v))
	}
	if v := viper.GetString("datapool-path"); v != "" {
		opts = append(opts, options.WithDatapoolPath(v))
	}
	if v := viper.GetUint64("heap-size"); v > 0 {
		opts = append(opts, options.WithHeapSize(v))
	}
	if v := viper.GetUint32("segment-size"); v > 0 {
		opts = append(opts, options.WithSegmentSize(v))
	}
	if v := viper.GetString("eviction"); v != "" {
		opts = append(opts, options.WithEviction(options.Eviction(v)))
	}
	if v := viper.GetString("time-type"); v != "" {
		opts = append(opts, options.WithTimeType(options.TimeType(v)))
	}

	return ignite.NewInstance(ctx, "ignite-cli", opts...)
}

func closeInstance(ctx context.Context, inst *ignite.Instance) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := inst.Close(shutdownCtx); err != nil {
		_, _ = warnC.Println("warning: close failed:", err)
	}
}
