package contract

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"okucheck/internal/apiclient"
)

// Step is one row of the scenario table.
type Step struct {
	Name string

	// Expect lists the accepted status codes; it documents the check and
	// feeds the default status assertion.
	Expect []int

	// Requires reports missing state; a non-nil error fails the step without a call.
	Requires func(Session) error

	// Request builds the call from the current session.
	Request func(Session) apiclient.Request

	// Check validates the response and returns the pass message.
	// When nil, the status must be one of Expect.
	Check func(Session, *apiclient.Response) (string, error)

	// Capture derives the next session from a passing response.
	Capture func(Session, *apiclient.Response) Session
}

func (s Step) check(sess Session, resp *apiclient.Response) (string, error) {
	if s.Check != nil {
		return s.Check(sess, resp)
	}
	if err := expectStatus(resp, s.Expect...); err != nil {
		return "", err
	}
	return fmt.Sprintf("status %d", resp.StatusCode), nil
}

// expectStatus fails unless resp.StatusCode is one of codes.
func expectStatus(resp *apiclient.Response, codes ...int) error {
	for _, c := range codes {
		if resp.StatusCode == c {
			return nil
		}
	}
	msg := fmt.Sprintf("expected %s, got %d", joinCodes(codes), resp.StatusCode)
	if m := resp.Message(); m != "" {
		msg += ", error: " + m
	}
	return assertionf("%s", msg)
}

// requireJSON fails with a transport-class error on an unparseable body.
func requireJSON(resp *apiclient.Response) error {
	if !resp.ValidJSON() {
		return &StepError{Kind: KindTransport, Message: fmt.Sprintf("malformed JSON response (status %d)", resp.StatusCode)}
	}
	return nil
}

// requireField fails unless path exists in the JSON body.
func requireField(resp *apiclient.Response, path string) (gjson.Result, error) {
	if err := requireJSON(resp); err != nil {
		return gjson.Result{}, err
	}
	v := resp.Get(path)
	if !v.Exists() || v.Type == gjson.Null {
		return v, assertionf("response missing field %q", path)
	}
	return v, nil
}

// requireArray fails unless path is a JSON array and returns its length.
func requireArray(resp *apiclient.Response, path string) (int, error) {
	v, err := requireField(resp, path)
	if err != nil {
		return 0, err
	}
	if !v.IsArray() {
		return 0, assertionf("field %q is %s, expected a list", path, v.Type)
	}
	return len(v.Array()), nil
}

// requireToken fails when role has no bearer token.
func requireToken(s Session, role Role) error {
	if s.Token(role) == "" {
		return preconditionf("no %s token available - %s login must pass first", roleLabel(role), roleLabel(role))
	}
	return nil
}

// requireUserID fails when role's user id is unknown.
func requireUserID(s Session, role Role) error {
	if s.UserID(role) == "" {
		return preconditionf("no %s user id available - %s registration or login must pass first", roleLabel(role), roleLabel(role))
	}
	return nil
}

// requireAll chains precondition checks.
func requireAll(checks ...func(Session) error) func(Session) error {
	return func(s Session) error {
		for _, c := range checks {
			if err := c(s); err != nil {
				return err
			}
		}
		return nil
	}
}

func tokenOf(role Role) func(Session) error {
	return func(s Session) error { return requireToken(s, role) }
}

func userIDOf(role Role) func(Session) error {
	return func(s Session) error { return requireUserID(s, role) }
}

func accountOf(role Role) func(Session) error {
	return func(s Session) error {
		if _, ok := s.Account(role); !ok {
			return preconditionf("%s was not registered - registration must pass first", role)
		}
		return nil
	}
}

func roleLabel(role Role) string {
	switch role {
	case RoleRider:
		return "OKU user"
	case RoleDriver:
		return "driver"
	case RoleAdmin:
		return "admin"
	default:
		return strings.ToLower(string(role))
	}
}

func joinCodes(codes []int) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = fmt.Sprint(c)
	}
	return strings.Join(parts, " or ")
}
