package models

import "time"

// DashboardStats is the payload behind the dashboard stat widgets.
type DashboardStats struct {
	Overview       StatsOverview  `json:"overview"`
	RecentUploads  RecentUploads  `json:"recent_uploads"`
	PopularEvents  []PopularEvent `json:"popular_events"`
	RecentActivity []ActivityItem `json:"recent_activity"`
	MonthlyStats   []MonthlyStat  `json:"monthly_stats"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

type StatsOverview struct {
	TotalEvents       int `json:"total_events"`
	PublishedEvents   int `json:"published_events"`
	FeaturedEvents    int `json:"featured_events"`
	RecentEvents      int `json:"recent_events"`
	TotalPhotos       int `json:"total_photos"`
	TotalVideos       int `json:"total_videos"`
	TotalReels        int `json:"total_reels"`
	TotalMediaFiles   int `json:"total_media_files"`
	TotalUsers        int `json:"total_users"`
	TotalClients      int `json:"total_clients"`
	RecentUsers       int `json:"recent_users"`
	EventsWithClients int `json:"events_with_clients"`
}

// RecentUploads counts media uploaded in the last seven days.
type RecentUploads struct {
	Photos int `json:"photos"`
	Videos int `json:"videos"`
	Reels  int `json:"reels"`
}

type PopularEvent struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	EventID     string `json:"event_id"`
	ClientCount int    `json:"client_count"`
	PhotoCount  int    `json:"photo_count"`
	VideoCount  int    `json:"video_count"`
	ReelCount   int    `json:"reel_count"`
}

type ActivityItem struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	EventID     string    `json:"event_id"`
	CreatedAt   time.Time `json:"created_at"`
	IsPublished bool      `json:"is_published"`
	IsFeatured  bool      `json:"is_featured"`
}

// MonthlyStat is one month of the chart series, oldest first.
type MonthlyStat struct {
	Month  string `json:"month"` // YYYY-MM
	Events int    `json:"events"`
	Photos int    `json:"photos"`
}

// EventAnalytics is the detail view for a single event.
type EventAnalytics struct {
	Event     EventSummary    `json:"event"`
	Analytics EventMediaStats `json:"analytics"`
	Clients   []EventClient   `json:"clients"`
}

type EventSummary struct {
	ID                  int        `json:"id"`
	Title               string     `json:"title"`
	EventID             string     `json:"event_id"`
	Description         string     `json:"description"`
	EventDate           string     `json:"event_date"`
	CreatedAt           time.Time  `json:"created_at"`
	IsPublished         bool       `json:"is_published"`
	IsFeatured          bool       `json:"is_featured"`
	IsPasswordProtected bool       `json:"is_password_protected"`
	ExpiresAt           *time.Time `json:"expires_at"`
	AllowDownloads      bool       `json:"allow_downloads"`
}

type EventMediaStats struct {
	PhotoCount     int `json:"photo_count"`
	VideoCount     int `json:"video_count"`
	ReelCount      int `json:"reel_count"`
	ClientCount    int `json:"client_count"`
	FeaturedPhotos int `json:"featured_photos"`
	FeaturedVideos int `json:"featured_videos"`
	FeaturedReels  int `json:"featured_reels"`
	TotalMedia     int `json:"total_media"`
}

type EventClient struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// EventAnalyticsList is the all-events analytics view.
type EventAnalyticsList struct {
	Events      []EventAnalyticsRow `json:"events"`
	TotalEvents int                 `json:"total_events"`
}

type EventAnalyticsRow struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	EventID     string    `json:"event_id"`
	EventDate   string    `json:"event_date"`
	CreatedAt   time.Time `json:"created_at"`
	IsPublished bool      `json:"is_published"`
	IsFeatured  bool      `json:"is_featured"`
	PhotoCount  int       `json:"photo_count"`
	VideoCount  int       `json:"video_count"`
	ReelCount   int       `json:"reel_count"`
	ClientCount int       `json:"client_count"`
	TotalMedia  int       `json:"total_media"`
}

// MediaCounts splits a media total by type.
type MediaCounts struct {
	Photos int `json:"photos"`
	Videos int `json:"videos"`
	Reels  int `json:"reels"`
}

// Total returns photos, videos and reels combined.
func (m MediaCounts) Total() int {
	return m.Photos + m.Videos + m.Reels
}

// MediaAnalytics is the media upload and storage view.
type MediaAnalytics struct {
	MediaDistribution MediaCounts     `json:"media_distribution"`
	RecentUploads     MediaCounts     `json:"recent_uploads"`
	FeaturedMedia     MediaCounts     `json:"featured_media"`
	DailyUploads      []DailyUploads  `json:"daily_uploads"`
	TopEvents         []TopMediaEvent `json:"top_events"`
	GeneratedAt       time.Time       `json:"generated_at"`
}

// DailyUploads is one day of the upload series, oldest first.
type DailyUploads struct {
	Date   string `json:"date"` // YYYY-MM-DD
	Photos int    `json:"photos"`
	Videos int    `json:"videos"`
	Reels  int    `json:"reels"`
	Total  int    `json:"total"`
}

type TopMediaEvent struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	EventID    string `json:"event_id"`
	PhotoCount int    `json:"photo_count"`
	VideoCount int    `json:"video_count"`
	ReelCount  int    `json:"reel_count"`
	TotalMedia int    `json:"total_media"`
}

// UserAnalytics is the user and client registration view.
type UserAnalytics struct {
	UserStats          UserStats           `json:"user_stats"`
	ClientStats        ClientStats         `json:"client_stats"`
	RegistrationTrends []RegistrationTrend `json:"registration_trends"`
	RecentUsers        []RecentUser        `json:"recent_users"`
	GeneratedAt        time.Time           `json:"generated_at"`
}

type UserStats struct {
	TotalUsers  int `json:"total_users"`
	ActiveUsers int `json:"active_users"`
	StaffUsers  int `json:"staff_users"`
	Superusers  int `json:"superusers"`
	RecentUsers int `json:"recent_users"` // last 30 days
	WeeklyUsers int `json:"weekly_users"` // last 7 days
}

type ClientStats struct {
	TotalClients  int `json:"total_clients"`
	RecentClients int `json:"recent_clients"`
}

type RegistrationTrend struct {
	Date    string `json:"date"`
	Users   int    `json:"users"`
	Clients int    `json:"clients"`
}

type RecentUser struct {
	ID         int       `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	DateJoined time.Time `json:"date_joined"`
	IsActive   bool      `json:"is_active"`
	IsStaff    bool      `json:"is_staff"`
}
