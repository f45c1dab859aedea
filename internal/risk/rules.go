package risk

import (
	"strings"
	"time"

	"github.com/BradenHooton/riskauth/internal/models"
)

type RuleID string

const (
	RuleFirstLogin           RuleID = "first_login"
	RuleImpossibleTravel     RuleID = "impossible_travel"
	RuleLongInactivity       RuleID = "long_inactivity"
	RuleIPChanged            RuleID = "ip_changed"
	RuleCountryChanged       RuleID = "country_changed"
	RuleNewDevice            RuleID = "new_device"
	RuleNewUserAgent         RuleID = "new_user_agent"
	RuleNewDeviceSameNetwork RuleID = "new_device_same_network"
	RuleUnusualHour          RuleID = "unusual_hour"
	RuleRepeatedFailedOTP    RuleID = "repeated_failed_otp"
	RuleRecentFailedOTP      RuleID = "recent_failed_otp"
	RuleHostingNetwork       RuleID = "hosting_network"
)

const (
	impossibleTravelWindow = 60 * time.Minute
	inactivityThreshold    = 60 * 24 * time.Hour
	failedOTPEscalation    = 3
)

// hostingIndicators are matched against the upper-cased "asn org" string.
var hostingIndicators = []string{
	"VPN", "PROXY", "DATACENTER", "HOSTING",
	"AZURE", "AMAZON", "GOOGLE", "MICROSOFT",
}

// Attempt is what a rule sees: the submitted signal, the previous snapshot and the attempt time in UTC.
type Attempt struct {
	Current models.LoginSignal
	Last    *models.RiskRecord
	At      time.Time
}

// sinceLast returns the absolute time between this attempt and the previous login.
func (a *Attempt) sinceLast() (time.Duration, bool) {
	if a.Last == nil || a.Last.LastLoginAt.IsZero() {
		return 0, false
	}
	d := a.At.Sub(a.Last.LastLoginAt)
	if d < 0 {
		d = -d
	}
	return d, true
}

func (a *Attempt) countryChanged() bool {
	return a.Last != nil &&
		a.Current.Country != "" &&
		a.Last.Location.Country != "" &&
		a.Current.Country != a.Last.Location.Country
}

func (a *Attempt) ipChanged() bool {
	return a.Last != nil && a.Current.IP != "" && a.Last.IP != "" && a.Current.IP != a.Last.IP
}

func (a *Attempt) deviceChanged() bool {
	return a.Last != nil && a.Current.DeviceID != "" && a.Last.DeviceID != "" && a.Current.DeviceID != a.Last.DeviceID
}

// Rule contributes a fixed weight when its condition holds.
type Rule interface {
	Evaluate(a *Attempt) (Factor, bool)
}

// RuleFunc adapts a plain function to Rule.
type RuleFunc func(a *Attempt) (Factor, bool)

func (f RuleFunc) Evaluate(a *Attempt) (Factor, bool) { return f(a) }

func fire(id RuleID, weight int, description string) (Factor, bool) {
	return Factor{Rule: id, Weight: weight, Description: description}, true
}

// DefaultRules returns the production rule set in evaluation order. The order determines
// the order of factors in an Assessment and therefore of the rendered reason.
func DefaultRules() []Rule {
	return []Rule{
		RuleFunc(firstLogin),
		RuleFunc(impossibleTravel),
		RuleFunc(longInactivity),
		RuleFunc(ipChanged),
		RuleFunc(countryChanged),
		RuleFunc(newDevice),
		RuleFunc(newUserAgent),
		RuleFunc(newDeviceSameNetwork),
		RuleFunc(unusualHour),
		RuleFunc(failedOTP),
		RuleFunc(hostingNetwork),
	}
}

func firstLogin(a *Attempt) (Factor, bool) {
	if a.Last != nil {
		return Factor{}, false
	}
	return fire(RuleFirstLogin, 5, "First login - baseline")
}

func impossibleTravel(a *Attempt) (Factor, bool) {
	elapsed, ok := a.sinceLast()
	if !ok || !a.countryChanged() || elapsed >= impossibleTravelWindow {
		return Factor{}, false
	}
	return fire(RuleImpossibleTravel, 60, "Rapid logins from distant countries (impossible travel)")
}

func longInactivity(a *Attempt) (Factor, bool) {
	elapsed, ok := a.sinceLast()
	if !ok || elapsed < inactivityThreshold {
		return Factor{}, false
	}
	return fire(RuleLongInactivity, 30, "Long inactivity gap")
}

func ipChanged(a *Attempt) (Factor, bool) {
	if !a.ipChanged() {
		return Factor{}, false
	}
	return fire(RuleIPChanged, 20, "IP changed since last login")
}

func countryChanged(a *Attempt) (Factor, bool) {
	if !a.countryChanged() {
		return Factor{}, false
	}
	return fire(RuleCountryChanged, 40, "Different country login")
}

func newDevice(a *Attempt) (Factor, bool) {
	if !a.deviceChanged() {
		return Factor{}, false
	}
	return fire(RuleNewDevice, 30, "New device detected")
}

// newUserAgent only applies when the device fingerprint rule did not fire.
func newUserAgent(a *Attempt) (Factor, bool) {
	if a.deviceChanged() || a.Last == nil {
		return Factor{}, false
	}
	if a.Current.UserAgent == "" || a.Last.UserAgent == "" || a.Current.UserAgent == a.Last.UserAgent {
		return Factor{}, false
	}
	return fire(RuleNewUserAgent, 15, "New browser/userAgent detected")
}

func newDeviceSameNetwork(a *Attempt) (Factor, bool) {
	if !a.deviceChanged() || a.Current.IP == "" || a.Current.IP != a.Last.IP {
		return Factor{}, false
	}
	if a.Current.Country != a.Last.Location.Country {
		return Factor{}, false
	}
	return fire(RuleNewDeviceSameNetwork, 10, "New device on same IP (possible trusted device)")
}

func unusualHour(a *Attempt) (Factor, bool) {
	if a.Last == nil || a.Last.LastLoginAt.IsZero() {
		return Factor{}, false
	}
	hour := a.At.Hour()
	lastHour := a.Last.LastLoginAt.UTC().Hour()
	if hour > 5 || lastHour < 8 || lastHour > 20 {
		return Factor{}, false
	}
	return fire(RuleUnusualHour, 20, "Login at unusual hour")
}

func failedOTP(a *Attempt) (Factor, bool) {
	if a.Last == nil || a.Last.FailedOTPCount <= 0 {
		return Factor{}, false
	}
	if a.Last.FailedOTPCount >= failedOTPEscalation {
		return fire(RuleRepeatedFailedOTP, 50, "Multiple recent failed OTP attempts")
	}
	return fire(RuleRecentFailedOTP, 10*a.Last.FailedOTPCount, "Recent failed OTP attempts")
}

func hostingNetwork(a *Attempt) (Factor, bool) {
	if a.Current.ASN == "" && a.Current.Org == "" {
		return Factor{}, false
	}
	combined := strings.ToUpper(a.Current.ASN + " " + a.Current.Org)
	for _, indicator := range hostingIndicators {
		if strings.Contains(combined, indicator) {
			return fire(RuleHostingNetwork, 15, "VPN / data-center provider detected")
		}
	}
	return Factor{}, false
}
