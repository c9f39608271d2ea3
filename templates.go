package webkit

import (
	"fmt"
	"os"
	"regexp"
)

// tagPattern matches a {{name}} template tag.
var tagPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Templates holds the HTML pages served by the Handler. Pages use {{name}}
// tags replaced verbatim by Render.
type Templates struct {
	Login   string
	Message string
	Logout  string
	Error   string
}

// DefaultTemplates returns the built-in pages.
func DefaultTemplates() Templates {
	return Templates{
		Login:   defaultLoginTemplate,
		Message: defaultMessageTemplate,
		Logout:  defaultLogoutTemplate,
		Error:   defaultErrorTemplate,
	}
}

// LoadTemplates reads the pages named in paths. Empty paths keep the
// built-in page.
func LoadTemplates(paths TemplatePaths) (Templates, error) {
	t := DefaultTemplates()
	files := []struct {
		path string
		dst  *string
	}{
		{paths.Login, &t.Login},
		{paths.Message, &t.Message},
		{paths.Logout, &t.Logout},
		{paths.Error, &t.Error},
	}
	for _, f := range files {
		if f.path == "" {
			continue
		}
		data, err := os.ReadFile(f.path)
		if err != nil {
			return Templates{}, fmt.Errorf("%w: %s: %w", ErrTemplateNotFound, f.path, err)
		}
		*f.dst = string(data)
	}
	return t, nil
}

// Render replaces every {{name}} tag of page with values[name]. Values are
// inserted as is; tags without a value render empty.
func Render(page string, values map[string]string) string {
	return tagPattern.ReplaceAllStringFunc(page, func(tag string) string {
		name := tagPattern.FindStringSubmatch(tag)[1]
		return values[name]
	})
}

const defaultLoginTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Sign in</title>
<style>body{font-family:sans-serif;max-width:24rem;margin:4rem auto}label,input,button{display:block;width:100%;margin:.5rem 0}.error{color:#b00020}</style>
</head>
<body>
<h1>Sign in</h1>
<p>Application <strong>{{client_id}}</strong> requests access to <strong>{{scope}}</strong>.</p>
<p class="error">{{error_description}}</p>
<form method="post" action="{{oauth2_authorization_form_action}}">
<input type="hidden" name="response_type" value="{{response_type}}">
<input type="hidden" name="client_id" value="{{client_id}}">
<input type="hidden" name="redirect_uri" value="{{redirect_uri}}">
<input type="hidden" name="scope" value="{{scope}}">
<input type="hidden" name="state" value="{{state}}">
<label for="username">Username</label>
<input id="username" name="username" autocomplete="username" required>
<label for="password">Password</label>
<input id="password" name="password" type="password" autocomplete="current-password" required>
<button type="submit">Sign in</button>
</form>
</body>
</html>
`

const defaultMessageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Authorize</title>
<style>body{font-family:sans-serif;max-width:24rem;margin:4rem auto}button{display:block;width:100%;margin:.5rem 0}</style>
</head>
<body>
<h1>Authorize</h1>
<p>Application <strong>{{client_id}}</strong> requests access to <strong>{{scope}}</strong>.</p>
<form method="post" action="{{oauth2_authorization_form_action}}">
<input type="hidden" name="response_type" value="{{response_type}}">
<input type="hidden" name="client_id" value="{{client_id}}">
<input type="hidden" name="redirect_uri" value="{{redirect_uri}}">
<input type="hidden" name="scope" value="{{scope}}">
<input type="hidden" name="state" value="{{state}}">
<input type="hidden" name="authorize" value="authorize">
<button type="submit">Allow</button>
</form>
</body>
</html>
`

const defaultLogoutTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Signed out</title>
</head>
<body>
<h1>Signed out</h1>
<p>You have been signed out.</p>
</body>
</html>
`

const defaultErrorTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Error {{error}}</title>
</head>
<body>
<h1>Error {{error}}</h1>
<p>{{error_description}}</p>
</body>
</html>
`
