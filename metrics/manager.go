package metrics

import (
	"sync"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-aggregator/types"
)

var customMetricsCreators = sync.Map{}

func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	customMetricsCreators.Store(metricsManagerName, creator)
}

// New picks the metrics backend named by config. Disabled metrics yield a
// no-op manager so callers never branch on nil.
func New(config *types.MetricsConfig, logger types.Logger) (types.MetricsManager, error) {
	if config == nil || !config.Enabled {
		return NewNoop(), nil
	}

	var manager types.MetricsManager
	var err error

	switch config.Type {
	case "", "prometheus":
		manager = NewPrometheusMetrics(config, logger)
	case "memory":
		manager = NewMemoryMetrics()
	default:
		if creator, exists := customMetricsCreators.Load(config.Type); exists {
			manager, err = creator.(types.MetricsManagerCreator)(config)
		} else {
			return nil, types.Errorf(types.ErrMetricsTypeUnknown, "type: %s", config.Type)
		}
	}

	if err != nil {
		return nil, types.WrapError(err, "failed to initialize metrics manager")
	}

	logger.Info("Metrics manager initialized", zap.String("type", config.Type))
	return manager, nil
}
