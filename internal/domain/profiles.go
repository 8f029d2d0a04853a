package domain

// LanguageProfile tells the sandbox how to run code for one language tag:
// the image to launch, the filename the code is written under, and the argv
// prefix the user-supplied args are appended to.
type LanguageProfile struct {
	Image          string   `json:"image" yaml:"image"`
	SourceFilename string   `json:"source_filename" yaml:"source_filename"`
	Argv           []string `json:"argv" yaml:"argv"`
}

// ProfileTable maps language tags to launch profiles.
type ProfileTable map[string]LanguageProfile

// GenericProfile is used for unrecognized tags. Such submissions are
// accepted but will almost certainly fail inside the sandbox.
func GenericProfile() LanguageProfile {
	return LanguageProfile{Image: "ubuntu:22.04", SourceFilename: "main.txt", Argv: []string{"sh", "-c"}}
}

// DefaultProfiles returns the baseline language set.
func DefaultProfiles() ProfileTable {
	return ProfileTable{
		"python":     {Image: "python:3.11-slim", SourceFilename: "main.py", Argv: []string{"python", "main.py"}},
		"javascript": {Image: "node:20-slim", SourceFilename: "main.js", Argv: []string{"node", "main.js"}},
		"typescript": {Image: "node:20-slim", SourceFilename: "main.ts", Argv: []string{"npx", "tsx", "main.ts"}},
		"go":         {Image: "golang:1.21-alpine", SourceFilename: "main.go", Argv: []string{"go", "run", "main.go"}},
		"rust":       {Image: "rust:1.75-slim", SourceFilename: "main.rs", Argv: []string{"cargo", "run"}},
		"java":       {Image: "openjdk:17-slim", SourceFilename: "Main.java", Argv: []string{"java", "Main.java"}},
		"ruby":       {Image: "ruby:3.2-slim", SourceFilename: "main.rb", Argv: []string{"ruby", "main.rb"}},
		"php":        {Image: "php:8.2-cli", SourceFilename: "main.php", Argv: []string{"php", "main.php"}},
		"shell":      {Image: "ubuntu:22.04", SourceFilename: "main.sh", Argv: []string{"sh", "main.sh"}},
	}
}

// For returns the profile for a language tag, falling back to the generic
// profile for unknown tags.
func (t ProfileTable) For(language string) LanguageProfile {
	if p, ok := t[language]; ok {
		return p
	}
	return GenericProfile()
}
