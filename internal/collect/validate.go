package collect

import "strings"

var allowedExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
}

// RequireFields fails when any required field is absent from the provided
// set. The resulting message enumerates the missing names in sorted order.
func RequireFields(required []string, provided map[string]string) error {
	var missing []string
	for _, name := range required {
		if _, ok := provided[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return NewMissingParameter(missing)
}

// AllowedMediaType reports whether the filename carries an allowed image
// extension. The check is purely syntactic; file content is not inspected.
func AllowedMediaType(filename string) bool {
	dot := strings.LastIndex(filename, ".")
	if dot < 0 {
		return false
	}
	_, ok := allowedExtensions[strings.ToLower(filename[dot+1:])]
	return ok
}
