package recovery

import (
	"cadence/internal/services"
)

var errNoRestartCallback = services.Wrap(
	services.ErrConfiguration, "recovery", "restart", "no restart callback configured", nil,
)
