package services

import (
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

type countryReader interface {
	Country(ip net.IP) (*geoip2.Country, error)
	Close() error
}

// GeoIPService resolves click IPs to a country name. Without a database every
// lookup answers "Unknown".
type GeoIPService struct {
	logger    *slog.Logger
	geoReader countryReader
	geoLock   sync.RWMutex
}

func NewGeoIPService(logger *slog.Logger) *GeoIPService {
	return &GeoIPService{logger: logger}
}

// Open loads a MaxMind Country or City database. Missing paths only disable lookups.
func (s *GeoIPService) Open(path string) {
	if path == "" {
		s.logger.Info("GeoIP: no database configured, lookups disabled")
		return
	}
	if _, err := os.Stat(path); err != nil {
		s.logger.Warn("GeoIP: database not found, lookups disabled", "path", path, "error", err)
		return
	}

	reader, err := geoip2.Open(path)
	if err != nil {
		s.logger.Error("GeoIP: Failed to open database", "path", path, "error", err)
		return
	}
	s.setReader(reader)
	s.logger.Info("GeoIP: Loaded database", "path", path, "epoch", reader.Metadata().BuildEpoch)
}

func (s *GeoIPService) setReader(r countryReader) {
	s.geoLock.Lock()
	defer s.geoLock.Unlock()

	if s.geoReader != nil {
		_ = s.geoReader.Close()
	}
	s.geoReader = r
}

func (s *GeoIPService) GetCountry(ipStr string) string {
	if s == nil {
		return "Unknown"
	}
	if ipStr == "127.0.0.1" || ipStr == "::1" {
		return "Localhost"
	}

	s.geoLock.RLock()
	reader := s.geoReader
	s.geoLock.RUnlock()

	if reader == nil {
		return "Unknown"
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "Invalid IP"
	}

	record, err := reader.Country(ip)
	if err != nil {
		s.logger.Error("GeoIP: Lookup error", "error", err)
		return "Unknown"
	}

	if name, ok := record.Country.Names["en"]; ok && name != "" {
		return name
	}
	if record.Country.IsoCode != "" {
		return record.Country.IsoCode
	}
	return "Unknown"
}

func (s *GeoIPService) Close() error {
	s.geoLock.Lock()
	defer s.geoLock.Unlock()

	if s.geoReader == nil {
		return nil
	}
	err := s.geoReader.Close()
	s.geoReader = nil
	return err
}
