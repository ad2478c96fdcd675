package platform

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/fentz26/meetbot/internal/browser"
	"github.com/fentz26/meetbot/internal/logging"
	"github.com/fentz26/meetbot/internal/models"
)

const (
	viewportWidth  = 1280
	viewportHeight = 720
)

// JoinRequest describes one join attempt.
type JoinRequest struct {
	Identity    models.BotIdentity
	DisplayName string
	// Timeout bounds each UI wait. Zero uses the platform default.
	Timeout time.Duration
}

// JoinedSession is a live, in-call browser session. The orchestrator owns it;
// recorder and detector only borrow it.
type JoinedSession struct {
	Identity models.BotIdentity
	Session  browser.Session
	// Surface is the document holding the in-call controls.
	Surface browser.Page
	End     EndSignal
	// JoinedAt is when the post-join signal was observed.
	JoinedAt time.Time
}

// Joined reports whether the post-join signal has been observed.
func (s *JoinedSession) Joined() bool {
	return s != nil && s.Session != nil && !s.JoinedAt.IsZero()
}

// Adapter joins meetings through a browser launcher. It keeps no state
// between joins, so a failed attempt never affects the next one.
type Adapter struct {
	launcher  browser.Launcher
	platforms map[models.Platform]MeetingPlatform
	userAgent string
	logger    logging.Logger
}

// NewAdapter creates an adapter with the production platform implementations.
func NewAdapter(launcher browser.Launcher, logger logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.NewNop()
	}
	a := &Adapter{
		launcher:  launcher,
		platforms: make(map[models.Platform]MeetingPlatform),
		userAgent: browser.DefaultUserAgent,
		logger:    logger.With(logging.F("component", "adapter")),
	}
	for _, p := range []models.Platform{models.PlatformMeet, models.PlatformTeams, models.PlatformZoom} {
		mp, _ := For(p)
		a.platforms[p] = mp
	}
	return a
}

// Register replaces the implementation used for mp.Name().
func (a *Adapter) Register(mp MeetingPlatform) {
	a.platforms[mp.Name()] = mp
}

// SetUserAgent overrides the user agent presented to the meeting site.
func (a *Adapter) SetUserAgent(ua string) {
	if ua != "" {
		a.userAgent = ua
	}
}

// Join opens a fresh browsing session and joins the meeting. Every failure is
// a *JoinError, and the session opened for the attempt is closed before
// returning.
func (a *Adapter) Join(ctx context.Context, req JoinRequest) (*JoinedSession, error) {
	mp, ok := a.platforms[req.Identity.Platform]
	if !ok {
		return nil, stageErr(StageURL, fmt.Errorf("%w: %q", ErrUnknownPlatform, req.Identity.Platform))
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = mp.DefaultJoinTimeout()
	}

	joinURL, err := mp.JoinURL(req.Identity.MeetingURL)
	if err != nil {
		return nil, stageErr(StageURL, err)
	}
	origin, err := originOf(joinURL)
	if err != nil {
		return nil, stageErr(StageURL, err)
	}

	log := a.logger.With(logging.F("bot_id", req.Identity.ID), logging.F("platform", string(mp.Name())))
	log.Info("launching browser", logging.F("url", joinURL))

	session, err := a.launcher.Launch(ctx, browser.Options{
		Origin:    origin,
		UserAgent: a.userAgent,
		Width:     viewportWidth,
		Height:    viewportHeight,
	})
	if err != nil {
		return nil, stageErr(StageLaunch, err)
	}

	joined, err := a.join(ctx, mp, session, joinURL, req, timeout)
	if err != nil {
		if cerr := session.Close(); cerr != nil {
			log.Warn("failed to close session after join failure", logging.Err(cerr))
		}
		log.Error("join failed", logging.Err(err))
		return nil, err
	}
	log.Info("joined meeting")
	return joined, nil
}

func (a *Adapter) join(ctx context.Context, mp MeetingPlatform, session browser.Session, joinURL string, req JoinRequest, timeout time.Duration) (*JoinedSession, error) {
	page := session.Page()

	navCtx, cancel := context.WithTimeout(ctx, timeout)
	err := page.Navigate(navCtx, joinURL)
	cancel()
	if err != nil {
		return nil, stageErr(StageNavigate, err)
	}

	surface, err := mp.Prejoin(ctx, page, PrejoinOptions{
		DisplayName: req.DisplayName,
		Timeout:     timeout,
	})
	if err != nil {
		var je *JoinError
		if !errors.As(err, &je) {
			err = stageErr(StageJoinButton, err)
		}
		return nil, err
	}

	if err := surface.WaitVisible(ctx, mp.PostJoinSelector(), timeout); err != nil {
		return nil, stageErr(StagePostJoin, err)
	}

	return &JoinedSession{
		Identity: req.Identity,
		Session:  session,
		Surface:  surface,
		End:      mp.EndSignal(),
		JoinedAt: time.Now(),
	}, nil
}

func originOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMeetingURL, err)
	}
	return u.Scheme + "://" + u.Host, nil
}
