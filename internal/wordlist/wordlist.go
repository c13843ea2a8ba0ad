// Package wordlist generates human-memorable subdomains for tunnel clients
// that don't ask for a specific one (§6.4): adjective-adjective-noun,
// hyphen-joined.
package wordlist

import "math/rand"

// adjectives and nouns are deliberately plain, pronounceable words — no
// homoglyphs, no profanity, nothing that could be misread over a phone call.
var adjectives = []string{
	"amber", "ancient", "autumn", "blazing", "bold", "brave", "bright", "broken",
	"calm", "caring", "central", "clever", "cold", "cool", "cosmic", "crisp",
	"crystal", "curious", "dancing", "daring", "dawn", "deep", "divine", "dreamy",
	"drifting", "dusky", "eager", "early", "eastern", "emerald", "endless", "evening",
	"fading", "fallen", "fancy", "fearless", "fierce", "floral", "flying", "foggy",
	"forest", "fragrant", "free", "friendly", "frosty", "frozen", "gentle", "gilded",
	"glad", "gliding", "golden", "graceful", "grand", "green", "growing", "happy",
	"hidden", "hollow", "humble", "hushed", "icy", "idle", "inner", "ivory",
	"jade", "jolly", "keen", "kind", "lasting", "late", "leafy", "light",
	"lively", "lonely", "long", "lost", "loving", "lucky", "lunar", "lush",
	"magic", "mellow", "mighty", "misty", "modest", "molten", "moonlit", "morning",
	"mossy", "muddy", "muted", "narrow", "neat", "nimble", "noble",
	"northern", "odd", "old", "open", "orange", "outer", "pale", "patient",
	"peaceful", "plain", "playful", "polar", "polished", "pretty", "proud", "pure",
	"purple", "quick", "quiet", "radiant", "rainy", "rapid", "rare", "regal",
	"restful", "rich", "rising", "rocky", "rosy", "rough", "round", "royal",
	"ruby", "rugged", "running", "rustic", "sacred", "sandy", "scarlet", "secret",
	"serene", "shady", "sharp", "shining", "shy", "silent", "silky", "silver",
	"simple", "sleepy", "slender", "small", "smooth", "snowy", "soft", "solar",
	"solemn", "solid", "southern", "sparkling", "spring", "steady", "steep", "still",
	"stormy", "stout", "strong", "summer", "sunny", "super", "sweet", "swift",
	"tall", "tawny", "tender", "thick", "tidal", "tiny", "tranquil", "tropical",
	"true", "twilight", "upper", "vast", "velvet", "vivid", "wandering", "warm",
	"wavy", "western", "white", "whole", "wide", "wild", "winding", "windy",
	"winter", "wise", "wooden", "young", "zealous",
}

var nouns = []string{
	"aurora", "bay", "beacon", "birch", "bird", "bloom", "boulder", "branch",
	"breeze", "bridge", "brook", "canopy", "canyon", "cape", "cedar", "cherry",
	"cliff", "cloud", "coast", "coral", "cove", "creek", "crest", "crystal",
	"current", "dale", "dawn", "delta", "desert", "dew", "dove", "drift",
	"dune", "dusk", "eagle", "earth", "echo", "elm", "ember", "falcon",
	"falls", "fern", "field", "finch", "fjord", "flame", "flint", "flower",
	"fog", "forge", "fossil", "fountain", "fox", "frost", "garden",
	"glade", "glen", "gorge", "granite", "grove", "gust", "harbor", "haven",
	"hawk", "heath", "hedge", "heron", "hill", "horizon", "island",
	"ivy", "jasper", "lake", "lark", "laurel", "leaf", "light",
	"lily", "lotus", "maple", "marsh", "meadow", "mesa", "mist", "moon",
	"moss", "mountain", "oak", "oasis", "ocean", "orchid", "otter", "owl",
	"palm", "pass", "path", "peak", "pearl", "pebble", "perch", "pine",
	"plain", "planet", "plateau", "plum", "pond", "prairie", "prism", "quail",
	"rain", "rapids", "raven", "reef", "ridge", "river", "robin", "rock",
	"root", "rose", "sage", "sand", "sea", "shade", "shadow", "shore",
	"sky", "snow", "spark", "spring", "spruce", "star", "stone", "storm",
	"stream", "summit", "sun", "surf", "swan", "temple", "thorn", "thunder",
	"tide", "timber", "trail", "tree", "tulip", "valley", "vine", "violet",
	"vista", "water", "wave", "whisper", "willow", "wind", "wing", "wood",
	"wren", "zenith",
}

// Generate returns a three-word, hyphen-joined subdomain — e.g.
// "gentle-morning-tide" — using the package's default math/rand source.
// Generate is not suitable for anything requiring unpredictability beyond
// avoiding accidental collisions; subdomain squatting is out of scope (§1).
func Generate() string {
	return generate(rand.Intn)
}

// generate is split out from Generate so tests can supply a deterministic
// intn and assert on the exact word choice.
func generate(intn func(n int) int) string {
	adj1 := adjectives[intn(len(adjectives))]
	adj2 := adjectives[intn(len(adjectives))]
	noun := nouns[intn(len(nouns))]
	return adj1 + "-" + adj2 + "-" + noun
}
