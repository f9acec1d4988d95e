// Package config loads taskplan's configuration file and watches it for
// changes.
package config
