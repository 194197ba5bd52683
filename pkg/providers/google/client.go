// Package google implements the Transcriber, Translator and Synthesizer on
// Google Cloud Speech-to-Text, Translation v2 and Text-to-Speech.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/harunnryd/juru/pkg/resilience"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Credentials selects how clients authenticate. An API key wins over a
// credentials file; with neither, application default credentials are used.
type Credentials struct {
	APIKey          string `mapstructure:"api_key"`
	CredentialsFile string `mapstructure:"credentials_file"`
	// Endpoint overrides the service base URL.
	Endpoint string `mapstructure:"endpoint"`
	// HTTPClient bypasses authentication entirely when set.
	HTTPClient *http.Client `mapstructure:"-"`
}

func clientOptions(ctx context.Context, creds Credentials) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	if creds.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(creds.Endpoint))
	}
	switch {
	case creds.HTTPClient != nil:
		opts = append(opts, option.WithHTTPClient(creds.HTTPClient))
	case strings.TrimSpace(creds.APIKey) != "":
		opts = append(opts, option.WithAPIKey(creds.APIKey))
	case strings.TrimSpace(creds.CredentialsFile) != "":
		opts = append(opts, option.WithCredentialsFile(creds.CredentialsFile))
	default:
		found, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("google default credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(found))
	}
	return opts, nil
}

// classify maps API errors onto the retry vocabulary: 429 opens the breaker,
// other 4xx are not worth retrying.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests:
			return resilience.RateLimitError{Provider: provider, Message: gerr.Message}
		case gerr.Code >= 400 && gerr.Code < 500:
			return resilience.Permanent(fmt.Errorf("%s: %s", provider, gerr.Message))
		}
	}
	return err
}
