package platform

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/fentz26/meetbot/internal/browser"
	"github.com/fentz26/meetbot/internal/models"
)

const (
	meetHost         = "meet.google.com"
	meetNameField    = `input[type="text"][aria-label="Your name"]`
	meetAskToJoin    = `//button[.//span[text()="Ask to join"]]`
	meetLeaveCall    = `button[aria-label="Leave call"]`
	meetNameSettle   = 10 * time.Second
	meetJoinTimeout  = 60 * time.Second
	meetPollInterval = 2 * time.Second
)

// Meet joins Google Meet as an anonymous guest.
type Meet struct {
	// NameSettle is how long to wait between the name field appearing and
	// typing into it. The prejoin screen re-renders shortly after load.
	NameSettle time.Duration
}

// NewMeet returns Meet with its production settle delay.
func NewMeet() Meet {
	return Meet{NameSettle: meetNameSettle}
}

func (Meet) Name() models.Platform { return models.PlatformMeet }

// JoinURL moves the meeting path into the fragment and appends anon=true.
func (Meet) JoinURL(meetingURL string) (string, error) {
	u, err := parseHTTPS(meetingURL, func(host string) bool { return host == meetHost })
	if err != nil {
		return "", err
	}
	if u.Path == "" || u.Path == "/" {
		return "", fmt.Errorf("%w: missing meeting code in %q", ErrInvalidMeetingURL, meetingURL)
	}
	return "https://" + meetHost + "#" + u.Path + "?" + anonQuery(u.RawQuery), nil
}

func (m Meet) Prejoin(ctx context.Context, page browser.Page, opts PrejoinOptions) (browser.Page, error) {
	if err := page.WaitVisible(ctx, meetNameField, opts.Timeout); err != nil {
		return nil, stageErr(StageNameField, err)
	}
	if err := sleep(ctx, m.NameSettle); err != nil {
		return nil, stageErr(StageNameField, err)
	}
	if err := page.Fill(ctx, meetNameField, opts.DisplayName); err != nil {
		return nil, stageErr(StageNameField, err)
	}
	if err := page.WaitVisible(ctx, meetAskToJoin, opts.Timeout); err != nil {
		return nil, stageErr(StageJoinButton, err)
	}
	if err := page.Click(ctx, meetAskToJoin); err != nil {
		return nil, stageErr(StageJoinButton, err)
	}
	return page, nil
}

func (Meet) PostJoinSelector() string { return meetLeaveCall }

func (Meet) EndSignal() EndSignal {
	return EndSignal{GoneSelector: meetLeaveCall, Interval: meetPollInterval}
}

func (Meet) DefaultJoinTimeout() time.Duration { return meetJoinTimeout }

func parseHTTPS(raw string, hostOK func(string) bool) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMeetingURL, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidMeetingURL, raw)
	}
	if !hostOK(u.Hostname()) {
		return nil, fmt.Errorf("%w: unexpected host %q", ErrInvalidMeetingURL, u.Hostname())
	}
	return u, nil
}

func anonQuery(rawQuery string) string {
	if rawQuery == "" {
		return "anon=true"
	}
	return rawQuery + "&anon=true"
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
