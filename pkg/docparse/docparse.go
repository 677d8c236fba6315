// Package docparse extracts structured facts from candidate resumes and
// job descriptions ahead of an interview. The model does the reading; this
// package owns the prompts, the response schemas, and the caching.
package docparse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/voxhire/voxhire/pkg/core"
)

// ResumeFacts is what the model extracts from a resume.
type ResumeFacts struct {
	LegalName string   `json:"legal_name"`
	Nicknames []string `json:"nicknames"`
	Links     []string `json:"links"`
	Usernames []string `json:"usernames"`
}

// JobFacts is what the model extracts from a job description.
type JobFacts struct {
	Title     string   `json:"title"`
	Seniority string   `json:"seniority"`
	Skills    []string `json:"skills"`
	Summary   string   `json:"summary"`
}

const resumePrompt = `Analyze this resume text and extract:
1. Any nicknames, aliases, or alternate names the person uses (not their legal name)
2. All URLs and links found (GitHub, personal websites, portfolio links, social media, etc.)
3. Any usernames or handles mentioned (e.g., @username, github.com/username)

Resume text:
%s

Return your response as a JSON object with this exact structure:
{
    "nicknames": ["list of nicknames/aliases"],
    "links": ["list of URLs found"],
    "usernames": ["list of usernames/handles extracted from links or mentioned"],
    "legal_name": "the person's full legal name if found"
}

Only include actual items found. Return empty arrays if nothing found for a category.`

const jobPrompt = `Analyze this job description and extract:
1. The role title
2. The seniority level (junior, mid, senior, staff, unspecified)
3. The concrete skills the role requires
4. A two-sentence summary an interviewer can read before the call

Job description:
%s

Return your response as a JSON object with this exact structure:
{
    "title": "role title",
    "seniority": "seniority level",
    "skills": ["list of required skills"],
    "summary": "two-sentence summary"
}`

const queriesPrompt = `Generate search queries to find personal and non-technical information about this person.

Person's details:
- Name: %s
- Current occupation/title: %s
- Location: %s
- Known usernames/handles: %v

Generate STRICTLY 6 (SIX) UNIQUE keyword search queries that would help find this person's:
1. Personal blogs, creative writing, or personal websites; talks about non-work topics
2. Social media profiles (Twitter, Instagram, personal accounts)
3. Hobbies, interests, and extracurricular activities, personal achievements or awards outside of work
4. Community involvement, volunteering, or causes they support
5. Creative work (art, music, photography, etc.)
6. Sports teams, clubs, or group memberships

IMPORTANT: Do NOT generate queries for:
- GitHub or code repositories (handled separately)
- LinkedIn profiles (handled separately)
- Technical/coding content

Focus on discovering WHO the person is beyond their technical skills.

Return as a JSON array of search query strings. Make queries specific enough to identify this person. Make the queries short and concise.
Example: ["John Doe hobbies interests", "John Doe volunteer", "John Doe personal blog", "johndoe <social media platform>", "John Doe <podcast/interview>"]`

// generator abstracts the model call so parsing logic can be exercised
// without the real service.
type generator interface {
	generateJSON(ctx context.Context, prompt string) (string, error)
}

type genaiGenerator struct {
	client *genai.Client
	model  string
}

func (g *genaiGenerator) generateJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Parser runs extraction prompts against the model.
type Parser struct {
	gen    generator
	logger *slog.Logger
}

// NewParser builds a parser over a configured model client.
func NewParser(client *genai.Client, model string, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{gen: &genaiGenerator{client: client, model: model}, logger: logger}
}

// ParseResume extracts identity facts from resume text.
func (p *Parser) ParseResume(ctx context.Context, text string) (ResumeFacts, error) {
	var facts ResumeFacts
	if err := p.extract(ctx, fmt.Sprintf(resumePrompt, text), &facts); err != nil {
		return ResumeFacts{}, err
	}
	return facts, nil
}

// ParseJob extracts role facts from a job description.
func (p *Parser) ParseJob(ctx context.Context, text string) (JobFacts, error) {
	var facts JobFacts
	if err := p.extract(ctx, fmt.Sprintf(jobPrompt, text), &facts); err != nil {
		return JobFacts{}, err
	}
	return facts, nil
}

// SearchQueries asks the model for web search queries that surface the
// candidate's non-professional presence. A model failure degrades to basic
// queries built from the known facts rather than an error.
func (p *Parser) SearchQueries(ctx context.Context, name, occupation, location string, usernames []string) []string {
	prompt := fmt.Sprintf(queriesPrompt, name, occupation, location, usernames)
	var queries []string
	if err := p.extract(ctx, prompt, &queries); err != nil || len(queries) == 0 {
		logger := p.logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("search query generation degraded to basics", "error", err)
		return basicQueries(name, occupation, usernames)
	}
	return queries
}

func basicQueries(name, occupation string, usernames []string) []string {
	var queries []string
	for i, u := range usernames {
		if i == 2 {
			break
		}
		queries = append(queries, u)
	}
	if name != "" {
		q := name
		if occupation != "" {
			q = name + " " + occupation
		}
		queries = append(queries, q)
	}
	return queries
}

func (p *Parser) extract(ctx context.Context, prompt string, out any) error {
	raw, err := p.gen.generateJSON(ctx, prompt)
	if err != nil {
		return core.NewAPIError("model extraction failed: "+err.Error(), "")
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		logger := p.logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("model returned non-JSON extraction", "error", err)
		return core.NewAPIError("model returned unparsable extraction", "")
	}
	return nil
}
