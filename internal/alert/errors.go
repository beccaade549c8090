package alert

import "errors"

var errStoreBreakerOpen = errors.New("alert: dedup store breaker open")
