package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/wolfeidau/eddits-console/internal/dashboard"
	"github.com/wolfeidau/eddits-console/internal/models"
)

// StatsCmd prints the dashboard overview.
type StatsCmd struct {
	JSON bool `help:"Print the raw stats as JSON" name:"json"`
}

func (c *StatsCmd) Run(ctx context.Context, globals *Globals) error {
	a, cleanup, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := requireSession(a); err != nil {
		return err
	}

	stats, err := a.Dashboard.Stats(ctx)
	if err != nil {
		return err
	}

	if c.JSON {
		return writeJSON(globals.stdout(), stats)
	}

	o := stats.Overview
	w := tabwriter.NewWriter(globals.stdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Events:\t%d (%d published, %d featured, %d recent)\n", o.TotalEvents, o.PublishedEvents, o.FeaturedEvents, o.RecentEvents)
	fmt.Fprintf(w, "Media:\t%d (%d photos, %d videos, %d reels)\n", o.TotalMediaFiles, o.TotalPhotos, o.TotalVideos, o.TotalReels)
	fmt.Fprintf(w, "Users:\t%d (%d recent)\n", o.TotalUsers, o.RecentUsers)
	fmt.Fprintf(w, "Clients:\t%d across %d events\n", o.TotalClients, o.EventsWithClients)
	fmt.Fprintf(w, "Uploads (7d):\t%d photos, %d videos, %d reels\n", stats.RecentUploads.Photos, stats.RecentUploads.Videos, stats.RecentUploads.Reels)
	if err := w.Flush(); err != nil {
		return err
	}

	if len(stats.PopularEvents) > 0 {
		fmt.Fprintln(globals.stdout())
		fmt.Fprintln(globals.stdout(), "Popular events:")
		w = tabwriter.NewWriter(globals.stdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EVENT ID\tTITLE\tCLIENTS\tPHOTOS\tVIDEOS\tREELS")
		for _, e := range stats.PopularEvents {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n", e.EventID, e.Title, e.ClientCount, e.PhotoCount, e.VideoCount, e.ReelCount)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if len(stats.MonthlyStats) > 0 {
		fmt.Fprintln(globals.stdout())
		w = tabwriter.NewWriter(globals.stdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MONTH\tEVENTS\tPHOTOS")
		for _, m := range stats.MonthlyStats {
			fmt.Fprintf(w, "%s\t%d\t%d\n", m.Month, m.Events, m.Photos)
		}
		return w.Flush()
	}

	return nil
}

// AnalyticsCmd prints per-event analytics, the detail for one event, or the
// media and user views.
type AnalyticsCmd struct {
	EventID int  `arg:"" optional:"" help:"Numeric event ID to show in detail"`
	Media   bool `help:"Show media upload analytics" xor:"view"`
	Users   bool `help:"Show user and client analytics" xor:"view"`
	JSON    bool `help:"Print the raw analytics as JSON" name:"json"`
}

func (c *AnalyticsCmd) Run(ctx context.Context, globals *Globals) error {
	a, cleanup, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := requireSession(a); err != nil {
		return err
	}

	switch {
	case (c.Media || c.Users) && c.EventID != 0:
		return errors.New("an event ID cannot be combined with --media or --users")
	case c.Media:
		return c.showMedia(ctx, globals, a.Dashboard)
	case c.Users:
		return c.showUsers(ctx, globals, a.Dashboard)
	case c.EventID != 0:
		return c.showEvent(ctx, globals, a.Dashboard)
	}

	list, err := a.Dashboard.Events(ctx)
	if err != nil {
		return err
	}

	if c.JSON {
		return writeJSON(globals.stdout(), list)
	}

	w := tabwriter.NewWriter(globals.stdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEVENT ID\tTITLE\tDATE\tPUBLISHED\tMEDIA\tCLIENTS")
	for _, e := range list.Events {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%d\t%d\n", e.ID, e.EventID, e.Title, e.EventDate, e.IsPublished, e.TotalMedia, e.ClientCount)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(globals.stdout(), "\n%d events\n", list.TotalEvents)
	return nil
}

func (c *AnalyticsCmd) showEvent(ctx context.Context, globals *Globals, client *dashboard.Client) error {
	detail, err := client.Event(ctx, c.EventID)
	if err != nil {
		return err
	}

	if c.JSON {
		return writeJSON(globals.stdout(), detail)
	}

	e, m := detail.Event, detail.Analytics
	w := tabwriter.NewWriter(globals.stdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Event:\t%s (%s)\n", e.Title, e.EventID)
	fmt.Fprintf(w, "Date:\t%s\n", e.EventDate)
	fmt.Fprintf(w, "Published:\t%t\n", e.IsPublished)
	fmt.Fprintf(w, "Featured:\t%t\n", e.IsFeatured)
	fmt.Fprintf(w, "Downloads:\t%t\n", e.AllowDownloads)
	if e.ExpiresAt != nil {
		fmt.Fprintf(w, "Expires:\t%s\n", e.ExpiresAt.Local().Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Media:\t%d (%d photos, %d videos, %d reels)\n", m.TotalMedia, m.PhotoCount, m.VideoCount, m.ReelCount)
	fmt.Fprintf(w, "Featured media:\t%d photos, %d videos, %d reels\n", m.FeaturedPhotos, m.FeaturedVideos, m.FeaturedReels)
	fmt.Fprintf(w, "Clients:\t%d\n", m.ClientCount)
	if err := w.Flush(); err != nil {
		return err
	}

	if len(detail.Clients) > 0 {
		fmt.Fprintln(globals.stdout())
		w = tabwriter.NewWriter(globals.stdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tEMAIL\tPHONE")
		for _, cl := range detail.Clients {
			fmt.Fprintf(w, "%s\t%s\t%s\n", cl.Name, cl.Email, cl.Phone)
		}
		return w.Flush()
	}

	return nil
}

func (c *AnalyticsCmd) showMedia(ctx context.Context, globals *Globals, client *dashboard.Client) error {
	media, err := client.Media(ctx)
	if err != nil {
		return err
	}

	if c.JSON {
		return writeJSON(globals.stdout(), media)
	}

	w := tabwriter.NewWriter(globals.stdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tPHOTOS\tVIDEOS\tREELS\tTOTAL")
	for _, row := range []struct {
		label  string
		counts models.MediaCounts
	}{
		{"All", media.MediaDistribution},
		{"Last 7 days", media.RecentUploads},
		{"Featured", media.FeaturedMedia},
	} {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", row.label, row.counts.Photos, row.counts.Videos, row.counts.Reels, row.counts.Total())
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(media.TopEvents) > 0 {
		fmt.Fprintln(globals.stdout())
		fmt.Fprintln(globals.stdout(), "Top events:")
		w = tabwriter.NewWriter(globals.stdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EVENT ID\tTITLE\tPHOTOS\tVIDEOS\tREELS\tTOTAL")
		for _, e := range media.TopEvents {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n", e.EventID, e.Title, e.PhotoCount, e.VideoCount, e.ReelCount, e.TotalMedia)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if len(media.DailyUploads) > 0 {
		fmt.Fprintln(globals.stdout())
		w = tabwriter.NewWriter(globals.stdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tPHOTOS\tVIDEOS\tREELS\tTOTAL")
		for _, d := range media.DailyUploads {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", d.Date, d.Photos, d.Videos, d.Reels, d.Total)
		}
		return w.Flush()
	}

	return nil
}

func (c *AnalyticsCmd) showUsers(ctx context.Context, globals *Globals, client *dashboard.Client) error {
	users, err := client.Users(ctx)
	if err != nil {
		return err
	}

	if c.JSON {
		return writeJSON(globals.stdout(), users)
	}

	u, cl := users.UserStats, users.ClientStats
	w := tabwriter.NewWriter(globals.stdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Users:\t%d (%d active, %d staff, %d superusers)\n", u.TotalUsers, u.ActiveUsers, u.StaffUsers, u.Superusers)
	fmt.Fprintf(w, "New users:\t%d in 30 days, %d in 7 days\n", u.RecentUsers, u.WeeklyUsers)
	fmt.Fprintf(w, "Clients:\t%d (%d in 30 days)\n", cl.TotalClients, cl.RecentClients)
	if err := w.Flush(); err != nil {
		return err
	}

	if len(users.RecentUsers) > 0 {
		fmt.Fprintln(globals.stdout())
		fmt.Fprintln(globals.stdout(), "Recent sign ups:")
		w = tabwriter.NewWriter(globals.stdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEMAIL\tNAME\tJOINED\tACTIVE\tSTAFF")
		for _, r := range users.RecentUsers {
			name := strings.TrimSpace(r.FirstName + " " + r.LastName)
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%t\n", r.ID, r.Email, name, r.DateJoined.Local().Format(time.DateOnly), r.IsActive, r.IsStaff)
		}
		return w.Flush()
	}

	return nil
}
