// Package geoip fills in the network and location fields a client did not submit,
// using MaxMind City and ASN databases.
package geoip

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/BradenHooton/riskauth/internal/models"
	"github.com/oschwald/geoip2-golang"
)

// Service looks up IPs in the configured databases. Either database may be absent.
type Service struct {
	cityReader *geoip2.Reader
	asnReader  *geoip2.Reader
	logger     *slog.Logger
}

// NewService opens the .mmdb files at the given paths. An empty path disables that lookup.
func NewService(cityDBPath, asnDBPath string, logger *slog.Logger) (*Service, error) {
	s := &Service{logger: logger}

	if cityDBPath != "" {
		reader, err := geoip2.Open(cityDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open city database: %w", err)
		}
		s.cityReader = reader
	}

	if asnDBPath != "" {
		reader, err := geoip2.Open(asnDBPath)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open asn database: %w", err)
		}
		s.asnReader = reader
	}

	return s, nil
}

// Enabled reports whether at least one database is loaded.
func (s *Service) Enabled() bool {
	return s != nil && (s.cityReader != nil || s.asnReader != nil)
}

func (s *Service) Close() {
	if s.cityReader != nil {
		s.cityReader.Close()
	}
	if s.asnReader != nil {
		s.asnReader.Close()
	}
}

// Enrich returns a copy of signal with empty location and network fields filled from the databases.
// Values supplied by the client are never overwritten. Lookup failures leave the signal unchanged.
func (s *Service) Enrich(signal models.LoginSignal) models.LoginSignal {
	if !s.Enabled() {
		return signal
	}
	ip := net.ParseIP(signal.IP)
	if ip == nil {
		return signal
	}

	if s.cityReader != nil && needsLocation(signal) {
		record, err := s.cityReader.City(ip)
		if err != nil {
			s.logger.Debug("geoip city lookup failed", slog.Any("error", err))
		} else {
			fillString(&signal.Country, record.Country.IsoCode)
			if len(record.Subdivisions) > 0 {
				fillString(&signal.Region, record.Subdivisions[0].IsoCode)
			}
			fillString(&signal.City, record.City.Names["en"])
			if signal.Latitude == nil && signal.Longitude == nil && record.Country.IsoCode != "" {
				lat, lon := record.Location.Latitude, record.Location.Longitude
				signal.Latitude, signal.Longitude = &lat, &lon
			}
		}
	}

	if s.asnReader != nil && signal.ASN == "" && signal.Org == "" {
		record, err := s.asnReader.ASN(ip)
		if err != nil {
			s.logger.Debug("geoip asn lookup failed", slog.Any("error", err))
		} else if record.AutonomousSystemNumber != 0 {
			signal.ASN = fmt.Sprintf("AS%d", record.AutonomousSystemNumber)
			signal.Org = record.AutonomousSystemOrganization
		}
	}

	return signal
}

func needsLocation(signal models.LoginSignal) bool {
	return signal.Country == "" || signal.City == "" || signal.Latitude == nil
}

func fillString(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}
