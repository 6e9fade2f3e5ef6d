package jobs

// Categories maps assignable YouTube category IDs to their names, for
// operator-facing listings and messages.
var Categories = map[string]string{
	"1":  "Film & Animation",
	"2":  "Autos & Vehicles",
	"10": "Music",
	"15": "Pets & Animals",
	"17": "Sports",
	"19": "Travel & Events",
	"20": "Gaming",
	"22": "People & Blogs",
	"23": "Comedy",
	"24": "Entertainment",
	"25": "News & Politics",
	"26": "Howto & Style",
	"27": "Education",
	"28": "Science & Technology",
	"29": "Nonprofits & Activism",
}

// CategoryName resolves a category ID for display. Unknown IDs pass
// through unchanged: the API owns the authoritative list.
func CategoryName(id string) string {
	if name, ok := Categories[id]; ok {
		return name
	}
	return "category " + id
}
