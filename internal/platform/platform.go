// Package platform joins Google Meet, Microsoft Teams and Zoom calls as an
// anonymous guest. Each product's quirks live behind MeetingPlatform; Adapter
// runs the shared launch, prejoin and post-join sequence.
package platform

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fentz26/meetbot/internal/browser"
	"github.com/fentz26/meetbot/internal/models"
)

// PrejoinOptions carries what a prejoin ritual needs beyond the page.
type PrejoinOptions struct {
	DisplayName string
	// Timeout bounds each element wait of the ritual.
	Timeout time.Duration
}

// EndSignal tells the meeting-end detector what to watch for.
type EndSignal struct {
	// GoneSelector ends the meeting when it stops matching.
	GoneSelector string
	// AppearSelector ends the meeting when it starts matching.
	AppearSelector string
	// Acknowledge is clicked once AppearSelector matched, if set.
	Acknowledge string
	Interval    time.Duration
	// Timeout of zero waits forever.
	Timeout time.Duration
}

// MeetingPlatform is one product's guest join protocol.
type MeetingPlatform interface {
	Name() models.Platform
	// JoinURL rewrites a meeting link into the anonymous join form.
	JoinURL(meetingURL string) (string, error)
	// Prejoin fills the name, mutes if needed and asks to join. It returns the
	// page holding the in-call UI, which differs from page when the client
	// runs inside an iframe.
	Prejoin(ctx context.Context, page browser.Page, opts PrejoinOptions) (browser.Page, error)
	// PostJoinSelector matches only once the bot is in the call.
	PostJoinSelector() string
	EndSignal() EndSignal
	DefaultJoinTimeout() time.Duration
}

// For returns the implementation for p.
func For(p models.Platform) (MeetingPlatform, error) {
	switch p {
	case models.PlatformMeet:
		return NewMeet(), nil
	case models.PlatformTeams:
		return Teams{}, nil
	case models.PlatformZoom:
		return NewZoom(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, p)
	}
}

// Detect guesses the platform from the meeting URL's host.
func Detect(meetingURL string) (models.Platform, bool) {
	u, err := url.Parse(strings.TrimSpace(meetingURL))
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case host == meetHost:
		return models.PlatformMeet, true
	case host == teamsHost || strings.HasSuffix(host, "."+teamsHost):
		return models.PlatformTeams, true
	case host == "zoom.us" || strings.HasSuffix(host, ".zoom.us"):
		return models.PlatformZoom, true
	default:
		return "", false
	}
}

// DefaultJoinTimeout is the platform's join budget, or zero for unknown platforms.
func DefaultJoinTimeout(p models.Platform) time.Duration {
	mp, err := For(p)
	if err != nil {
		return 0
	}
	return mp.DefaultJoinTimeout()
}
