package relay

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

func (r *Relay) handleLogin(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form")
		return
	}
	email := req.PostFormValue("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	user := r.store.loginByEmail(email)
	token := issueToken(r.secret, user.Username, tokenTTL)
	r.log.Info("login", "user", user.Username)

	writeJSON(w, map[string]any{"token": token, "user": user})
}

func (r *Relay) handleVerify(w http.ResponseWriter, req *http.Request) {
	user, ok := r.authenticate(w, req)
	if !ok {
		return
	}
	writeJSON(w, user)
}

func (r *Relay) handleUsers(w http.ResponseWriter, req *http.Request) {
	if _, ok := r.authenticate(w, req); !ok {
		return
	}

	type entry struct {
		Username string `json:"username"`
	}
	names := r.store.list()
	out := make([]entry, 0, len(names))
	for _, name := range names {
		out = append(out, entry{Username: name})
	}
	writeJSON(w, out)
}

func (r *Relay) handleHistory(w http.ResponseWriter, req *http.Request) {
	if _, ok := r.authenticate(w, req); !ok {
		return
	}

	vars := mux.Vars(req)
	writeJSON(w, r.store.pairHistory(vars["self"], vars["peer"]))
}

// authenticate resolves the Bearer token to a registered user, writing the
// 401 itself when it cannot.
func (r *Relay) authenticate(w http.ResponseWriter, req *http.Request) (userRecord, bool) {
	token, ok := bearerToken(req)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return userRecord{}, false
	}
	username, err := parseToken(r.secret, token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return userRecord{}, false
	}
	user, ok := r.store.user(username)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unknown user")
		return userRecord{}, false
	}
	return user, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
