package util

import "time"

// Now padroniza horário em UTC.
func Now() time.Time {
	return time.Now().UTC()
}
