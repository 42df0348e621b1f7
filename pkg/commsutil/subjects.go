package commsutil

import (
	"fmt"
	"strings"
)

// SubjectRouteAnswered is the default base subject for route events.
const SubjectRouteAnswered = "stockqa.route.answered"

// BuildAnsweredSubject builds the per-responder event subject, e.g. stockqa.route.answered.marketdataagent.
func BuildAnsweredSubject(base, responder string) string {
	return fmt.Sprintf("%s.%s", base, strings.ToLower(responder))
}
