package platform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/meetbot/internal/browser"
	"github.com/fentz26/meetbot/internal/models"
)

const (
	teamsHost         = "teams.microsoft.com"
	teamsNameField    = `[data-tid="prejoin-display-name-input"]`
	teamsMute         = `[data-tid="toggle-mute"]`
	teamsJoin         = `[data-tid="prejoin-join-button"]`
	teamsLeave        = `button[aria-label="Leave (Ctrl+Shift+H)"]`
	teamsJoinTimeout  = 30 * time.Second
	teamsPollInterval = 2 * time.Second
)

// Teams joins Microsoft Teams through the v2 web client as a guest.
type Teams struct{}

func (Teams) Name() models.Platform { return models.PlatformTeams }

// JoinURL routes the meetup-join link through the v2 client's meetingjoin fragment.
func (Teams) JoinURL(meetingURL string) (string, error) {
	u, err := parseHTTPS(meetingURL, func(host string) bool {
		return host == teamsHost || strings.HasSuffix(host, "."+teamsHost)
	})
	if err != nil {
		return "", err
	}
	if u.Path == "" || u.Path == "/" {
		return "", fmt.Errorf("%w: missing meeting path in %q", ErrInvalidMeetingURL, meetingURL)
	}
	return "https://" + teamsHost + "/v2/?meetingjoin=true#" + u.Path + "?" + anonQuery(u.RawQuery), nil
}

func (Teams) Prejoin(ctx context.Context, page browser.Page, opts PrejoinOptions) (browser.Page, error) {
	if err := page.WaitVisible(ctx, teamsNameField, opts.Timeout); err != nil {
		return nil, stageErr(StageNameField, err)
	}
	if err := page.Fill(ctx, teamsNameField, opts.DisplayName); err != nil {
		return nil, stageErr(StageNameField, err)
	}

	if err := page.WaitVisible(ctx, teamsMute, opts.Timeout); err != nil {
		return nil, stageErr(StageMuteButton, err)
	}
	if err := page.Click(ctx, teamsMute); err != nil {
		return nil, stageErr(StageMuteButton, err)
	}

	if err := page.WaitVisible(ctx, teamsJoin, opts.Timeout); err != nil {
		return nil, stageErr(StageJoinButton, err)
	}
	if err := page.Click(ctx, teamsJoin); err != nil {
		return nil, stageErr(StageJoinButton, err)
	}
	return page, nil
}

func (Teams) PostJoinSelector() string { return teamsLeave }

func (Teams) EndSignal() EndSignal {
	return EndSignal{GoneSelector: teamsLeave, Interval: teamsPollInterval}
}

func (Teams) DefaultJoinTimeout() time.Duration { return teamsJoinTimeout }
