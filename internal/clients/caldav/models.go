package caldav

// Calendar is one collection found under the user's calendar home
type Calendar struct {
	Path        string
	DisplayName string
	Description string
}
