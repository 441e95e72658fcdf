package paths

import "testing"

func TestLogin(t *testing.T) {
	t.Parallel()

	enabled := LoginConfig{LoginURL: DefaultLoginURL, WPLoginEnabled: true}

	tests := []struct {
		name    string
		cfg     LoginConfig
		options LoginOptions
		want    string
	}{
		{
			name: "default login url",
			want: DefaultLoginURL,
		},
		{
			name: "configured login url",
			cfg:  LoginConfig{LoginURL: "https://example.com/login"},
			want: "https://example.com/login",
		},
		{
			name:    "native requires wp-login feature",
			cfg:     LoginConfig{LoginURL: DefaultLoginURL},
			options: LoginOptions{IsNative: true},
			want:    DefaultLoginURL,
		},
		{
			name:    "native login path",
			cfg:     enabled,
			options: LoginOptions{IsNative: true},
			want:    "/log-in",
		},
		{
			name: "native social two factor connect",
			cfg:  enabled,
			options: LoginOptions{
				IsNative:          true,
				SocialService:     "google",
				TwoFactorAuthType: "sms",
				SocialConnect:     true,
			},
			want: "/log-in/google/callback/sms/social-connect",
		},
		{
			name:    "locale on hosted url",
			options: LoginOptions{Locale: "fr"},
			want:    "https://fr.wordpress.com/wp-login.php",
		},
		{
			name:    "english locale is ignored",
			options: LoginOptions{Locale: "en"},
			want:    DefaultLoginURL,
		},
		{
			name:    "locale on native path",
			cfg:     enabled,
			options: LoginOptions{IsNative: true, Locale: "fr"},
			want:    "/log-in/fr",
		},
		{
			name:    "locale leaves other hosts alone",
			cfg:     LoginConfig{LoginURL: "https://example.com/login"},
			options: LoginOptions{Locale: "de"},
			want:    "https://example.com/login",
		},
		{
			name:    "redirect to",
			options: LoginOptions{RedirectTo: "https://example.com/"},
			want:    DefaultLoginURL + "?redirect_to=https%3A%2F%2Fexample.com%2F",
		},
		{
			name:    "redirect and email",
			options: LoginOptions{RedirectTo: "/me", EmailAddress: "a@b.c"},
			want:    DefaultLoginURL + "?email_address=a%40b.c&redirect_to=%2Fme",
		},
		{
			name:    "native locale and redirect",
			cfg:     enabled,
			options: LoginOptions{IsNative: true, Locale: "fr", RedirectTo: "/me"},
			want:    "/log-in/fr?redirect_to=%2Fme",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if got := Login(testCase.cfg, testCase.options); got != testCase.want {
				t.Fatalf("Login() = %q, want %q", got, testCase.want)
			}
		})
	}
}
