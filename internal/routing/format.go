package routing

import (
	"fmt"
	"strconv"
)

// FormatDistance renders meters the way maps UIs do: "850 m", "12.4 km", "312 km".
func FormatDistance(meters int) string {
	if meters < 1000 {
		return strconv.Itoa(meters) + " m"
	}
	km := float64(meters) / 1000
	if km < 100 {
		return strconv.FormatFloat(km, 'f', 1, 64) + " km"
	}
	return fmt.Sprintf("%.0f km", km)
}

// FormatDuration renders seconds as "1 min", "45 mins", "2 hours 5 mins" or "1 day 3 hours".
func FormatDuration(seconds int) string {
	mins := (seconds + 30) / 60
	if mins < 1 {
		mins = 1
	}
	days := mins / (24 * 60)
	hours := (mins % (24 * 60)) / 60
	mins %= 60

	switch {
	case days > 0:
		if hours == 0 {
			return plural(days, "day")
		}
		return plural(days, "day") + " " + plural(hours, "hour")
	case hours > 0:
		if mins == 0 {
			return plural(hours, "hour")
		}
		return plural(hours, "hour") + " " + plural(mins, "min")
	default:
		return plural(mins, "min")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
