package server

import (
	"bytes"
	_ "embed"
	"html/template"
)

//go:embed templates/home.html
var homePageTemplateHTML string

var homePageTemplate = template.Must(template.New("home").Parse(homePageTemplateHTML))

// HomePageData represents the data for the status page
type HomePageData struct {
	AuthorizationURL string
	TokenURL         string
	Scope            string
	SignedIn         bool
	Email            string
}

func renderHomePage(data HomePageData) ([]byte, error) {
	var buf bytes.Buffer
	if err := homePageTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
