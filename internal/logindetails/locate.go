// Package logindetails resolves client location and browser details for login audit records.
package logindetails

import (
	"net"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
	log "github.com/sirupsen/logrus"
)

// Placeholder values returned when a lookup cannot resolve anything useful.
const (
	LocationLocal   = "Local/Development"
	LocationPrivate = "Private Network"
	LocationUnknown = "Unknown Location"
	BrowserUnknown  = "Unknown Browser"
	DeviceUnknown   = "Unknown Device"
)

// cityReader is the subset of *geoip2.Reader used by Locator.
type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// Locator maps client addresses to "City, Country" strings.
type Locator struct {
	mu     sync.RWMutex
	reader cityReader
}

// NewLocator opens the MaxMind City database at path.
// An empty path yields a locator that only classifies local and private addresses.
func NewLocator(path string) (*Locator, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return &Locator{}, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &Locator{reader: reader}, nil
}

// Locate returns a human-readable location for ip. It never fails.
func (l *Locator) Locate(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" || ip == "localhost" {
		return LocationLocal
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return LocationUnknown
	}
	if parsed.IsLoopback() {
		return LocationLocal
	}
	if parsed.IsPrivate() || parsed.IsLinkLocalUnicast() {
		return LocationPrivate
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.reader == nil {
		return LocationUnknown
	}
	record, err := l.reader.City(parsed)
	if err != nil {
		log.WithError(err).WithField("ip", ip).Warn("logindetails: geoip lookup failed")
		return LocationUnknown
	}
	city := record.City.Names["en"]
	country := record.Country.Names["en"]
	switch {
	case city != "" && country != "":
		return city + ", " + country
	case country != "":
		return country
	default:
		return LocationUnknown
	}
}

// Close releases the database.
func (l *Locator) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reader == nil {
		return nil
	}
	err := l.reader.Close()
	l.reader = nil
	return err
}
