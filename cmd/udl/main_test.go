package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/msebastian100/universal-downloader/internal/model"
)

func TestClassifyTarget(t *testing.T) {
	tests := []struct {
		in         string
		wantKind   string
		wantTarget string
		wantErr    bool
	}{
		{"audible:b0036s4b2g", model.ProviderAudible, "B0036S4B2G", false},
		{"AUDIBLE: B0036S4B2G ", model.ProviderAudible, "B0036S4B2G", false},
		{"audible:", "", "", true},
		{"https://www.deezer.com/de/album/302127", model.ProviderDeezer, "https://www.deezer.com/de/album/302127", false},
		{"track:3135556", model.ProviderDeezer, "track:3135556", false},
		{"https://www.ardmediathek.de/video/tatort/folge-1", model.ProviderVideo, "https://www.ardmediathek.de/video/tatort/folge-1", false},
		{"https://cdn.example.com/master.m3u8", model.ProviderVideo, "https://cdn.example.com/master.m3u8", false},
		{"not a url", "", "", true},
		{"ftp://example.com/file", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			kind, target, err := classifyTarget(tt.in)
			if tt.wantErr {
				if !errors.Is(err, model.ErrUnsupportedURL) {
					t.Fatalf("err = %v, want ErrUnsupportedURL", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if kind != tt.wantKind || target != tt.wantTarget {
				t.Fatalf("got (%q, %q), want (%q, %q)", kind, target, tt.wantKind, tt.wantTarget)
			}
		})
	}
}

func TestLookupBook(t *testing.T) {
	books := []model.Book{{ASIN: "B0036S4B2G", Title: "Der Schwarm", Author: "Frank Schätzing"}}

	if b := lookupBook(books, " b0036s4b2g"); b.Title != "Der Schwarm" {
		t.Fatalf("known ASIN resolved to %+v", b)
	}
	if b := lookupBook(nil, "b00unknown"); b.ASIN != "B00UNKNOWN" || b.Title != "B00UNKNOWN" {
		t.Fatalf("unknown ASIN resolved to %+v", b)
	}
}

func TestArgsDescription(t *testing.T) {
	desc := argsDescription()
	for _, want := range []string{"AUDIBLE", "DEEZER", "QUEUE", "audible activation", "udl queue urls.txt"} {
		if !strings.Contains(desc, want) {
			t.Errorf("description missing %q", want)
		}
	}
}
