package testbackend

import (
	"time"

	"github.com/wolfeidau/eddits-console/internal/models"
)

var fixtureTime = time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

func defaultUser() models.User {
	joined := fixtureTime.AddDate(-1, 0, 0)
	return models.User{
		ID:          1,
		Username:    Username,
		Email:       "alice@eddits.example",
		FirstName:   "Alice",
		LastName:    "Nguyen",
		IsActive:    true,
		IsStaff:     true,
		Permissions: []string{"events.view_event", "events.change_event"},
		DateJoined:  &joined,
	}
}

func defaultStats() models.DashboardStats {
	return models.DashboardStats{
		Overview: models.StatsOverview{
			TotalEvents:       12,
			PublishedEvents:   9,
			FeaturedEvents:    3,
			RecentEvents:      2,
			TotalPhotos:       1840,
			TotalVideos:       64,
			TotalReels:        22,
			TotalMediaFiles:   1926,
			TotalUsers:        5,
			TotalClients:      48,
			RecentUsers:       1,
			EventsWithClients: 7,
		},
		RecentUploads: models.RecentUploads{Photos: 120, Videos: 4, Reels: 2},
		PopularEvents: []models.PopularEvent{
			{ID: 1, Title: "Harbour Wedding", EventID: "EVT-0001", ClientCount: 14, PhotoCount: 620, VideoCount: 12, ReelCount: 5},
			{ID: 2, Title: "Spring Gala", EventID: "EVT-0002", ClientCount: 9, PhotoCount: 410, VideoCount: 8, ReelCount: 3},
		},
		RecentActivity: []models.ActivityItem{
			{ID: 2, Title: "Spring Gala", EventID: "EVT-0002", CreatedAt: fixtureTime, IsPublished: true},
		},
		MonthlyStats: []models.MonthlyStat{
			{Month: "2025-02", Events: 3, Photos: 510},
			{Month: "2025-03", Events: 2, Photos: 330},
		},
		GeneratedAt: fixtureTime,
	}
}

func defaultEvents() map[int]models.EventAnalytics {
	return map[int]models.EventAnalytics{
		1: {
			Event: models.EventSummary{
				ID: 1, Title: "Harbour Wedding", EventID: "EVT-0001", EventDate: "2025-02-08",
				CreatedAt: fixtureTime.AddDate(0, -1, 0), IsPublished: true, IsFeatured: true, AllowDownloads: true,
			},
			Analytics: models.EventMediaStats{
				PhotoCount: 620, VideoCount: 12, ReelCount: 5, ClientCount: 14,
				FeaturedPhotos: 40, FeaturedVideos: 2, FeaturedReels: 1, TotalMedia: 637,
			},
			Clients: []models.EventClient{
				{ID: 7, Name: "Sam Patel", Email: "sam@example.com", CreatedAt: fixtureTime},
			},
		},
		2: {
			Event: models.EventSummary{
				ID: 2, Title: "Spring Gala", EventID: "EVT-0002", EventDate: "2025-03-01",
				CreatedAt: fixtureTime, IsPublished: true, IsPasswordProtected: true,
			},
			Analytics: models.EventMediaStats{
				PhotoCount: 410, VideoCount: 8, ReelCount: 3, ClientCount: 9, TotalMedia: 421,
			},
		},
	}
}

func defaultMedia() models.MediaAnalytics {
	return models.MediaAnalytics{
		MediaDistribution: models.MediaCounts{Photos: 1840, Videos: 64, Reels: 22},
		RecentUploads:     models.MediaCounts{Photos: 120, Videos: 4, Reels: 2},
		FeaturedMedia:     models.MediaCounts{Photos: 48, Videos: 6, Reels: 3},
		DailyUploads: []models.DailyUploads{
			{Date: "2025-03-13", Photos: 40, Videos: 1, Reels: 0, Total: 41},
			{Date: "2025-03-14", Photos: 80, Videos: 3, Reels: 2, Total: 85},
		},
		TopEvents: []models.TopMediaEvent{
			{ID: 1, Title: "Harbour Wedding", EventID: "EVT-0001", PhotoCount: 620, VideoCount: 12, ReelCount: 5, TotalMedia: 637},
			{ID: 2, Title: "Spring Gala", EventID: "EVT-0002", PhotoCount: 410, VideoCount: 8, ReelCount: 3, TotalMedia: 421},
		},
		GeneratedAt: fixtureTime,
	}
}

func defaultUserAnalytics() models.UserAnalytics {
	return models.UserAnalytics{
		UserStats: models.UserStats{
			TotalUsers:  5,
			ActiveUsers: 4,
			StaffUsers:  2,
			Superusers:  1,
			RecentUsers: 1,
			WeeklyUsers: 1,
		},
		ClientStats: models.ClientStats{TotalClients: 48, RecentClients: 6},
		RegistrationTrends: []models.RegistrationTrend{
			{Date: "2025-03-13", Users: 0, Clients: 2},
			{Date: "2025-03-14", Users: 1, Clients: 4},
		},
		RecentUsers: []models.RecentUser{
			{ID: 5, Email: "sam@eddits.example", FirstName: "Sam", LastName: "Ortiz", DateJoined: fixtureTime, IsActive: true},
		},
		GeneratedAt: fixtureTime,
	}
}
