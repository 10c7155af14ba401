//go:build windows

package config

// mapEnvKey translates Unix variable names to their Windows counterparts.
func mapEnvKey(key string) string {
	switch key {
	case "HOSTNAME":
		return "COMPUTERNAME"
	case "USER":
		return "USERNAME"
	}
	return key
}
