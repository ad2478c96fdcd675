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

const (
	zoomClientHost   = "app.zoom.us"
	zoomFrame        = ".pwa-webclient__iframe"
	zoomNameField    = "#input-for-name"
	zoomJoin         = "button.zm-btn.preview-join-button"
	zoomAudio        = "button.join-audio-by-voip__join-btn"
	zoomLeave        = "button.footer__leave-btn"
	zoomEndedOK      = "button.zm-btn.zm-btn-legacy.zm-btn--primary.zm-btn__outline--blue"
	zoomAudioSettle  = time.Second
	zoomJoinTimeout  = 60 * time.Second
	zoomPollInterval = 5 * time.Second
)

// Zoom joins through the Zoom web client, whose UI lives in an iframe.
type Zoom struct {
	// AudioSettle is the pause before clicking "join with computer audio".
	AudioSettle time.Duration
}

// NewZoom returns Zoom with its production settle delay.
func NewZoom() Zoom {
	return Zoom{AudioSettle: zoomAudioSettle}
}

func (Zoom) Name() models.Platform { return models.PlatformZoom }

// JoinURL turns a /j/<id>?pwd=... link into the web client join page.
func (Zoom) JoinURL(meetingURL string) (string, error) {
	u, err := parseHTTPS(meetingURL, func(host string) bool {
		return host == "zoom.us" || strings.HasSuffix(host, ".zoom.us")
	})
	if err != nil {
		return "", err
	}
	segments := strings.Split(u.Path, "/")
	if len(segments) < 3 || segments[2] == "" {
		return "", fmt.Errorf("%w: missing meeting id in %q", ErrInvalidMeetingURL, meetingURL)
	}
	id := segments[2]

	join := "https://" + zoomClientHost + "/wc/" + url.PathEscape(id) + "/join?fromPWA=1"
	if pwd := u.Query().Get("pwd"); pwd != "" {
		join += "&pwd=" + url.QueryEscape(pwd)
	}
	return join, nil
}

func (z Zoom) Prejoin(ctx context.Context, page browser.Page, opts PrejoinOptions) (browser.Page, error) {
	frame, err := page.Frame(ctx, zoomFrame, opts.Timeout)
	if err != nil {
		return nil, stageErr(StageFrame, err)
	}

	if err := frame.WaitVisible(ctx, zoomNameField, opts.Timeout); err != nil {
		return nil, stageErr(StageNameField, err)
	}
	if err := frame.Fill(ctx, zoomNameField, opts.DisplayName); err != nil {
		return nil, stageErr(StageNameField, err)
	}

	if err := frame.WaitVisible(ctx, zoomJoin, opts.Timeout); err != nil {
		return nil, stageErr(StageJoinButton, err)
	}
	if err := frame.Click(ctx, zoomJoin); err != nil {
		return nil, stageErr(StageJoinButton, err)
	}

	if err := frame.WaitVisible(ctx, zoomAudio, opts.Timeout); err != nil {
		return nil, stageErr(StageAudioButton, err)
	}
	if err := sleep(ctx, z.AudioSettle); err != nil {
		return nil, stageErr(StageAudioButton, err)
	}
	if err := frame.Click(ctx, zoomAudio); err != nil {
		return nil, stageErr(StageAudioButton, err)
	}
	return frame, nil
}

func (Zoom) PostJoinSelector() string { return zoomLeave }

// EndSignal waits for the "meeting has ended" dialog, which must be
// acknowledged before the recording can be closed. Call length is unknown,
// so there is no overall timeout.
func (Zoom) EndSignal() EndSignal {
	return EndSignal{
		AppearSelector: zoomEndedOK,
		Acknowledge:    zoomEndedOK,
		Interval:       zoomPollInterval,
	}
}

func (Zoom) DefaultJoinTimeout() time.Duration { return zoomJoinTimeout }
