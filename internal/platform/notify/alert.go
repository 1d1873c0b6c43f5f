package notify

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Alert is raised once when a scraper exhausts its retries.
type Alert struct {
	Scraper   string    `json:"scraper"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	RaisedAt  time.Time `json:"raised_at"`
}

func (a Alert) Title() string {
	return fmt.Sprintf("Scraper %s failed permanently", a.Scraper)
}

func (a Alert) Message() string {
	return fmt.Sprintf("Scraper %s failed %d times. Last error: %s", a.Scraper, a.Attempts, a.LastError)
}

type Alerter interface {
	Alert(ctx context.Context, a Alert) error
}

// Fanout delivers to every alerter and joins their errors.
type Fanout []Alerter

func (f Fanout) Alert(ctx context.Context, a Alert) error {
	var errs []error
	for _, al := range f {
		if al == nil {
			continue
		}
		if err := al.Alert(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
