// Package auth issues and validates the bearer tokens of the control API.
//
// Tokens are HS256 JWTs signed with the shared secret from
// security.jwt.secret. There is no user database: operators receive tokens
// minted by playoutctl or by automation holding the secret. Each token
// carries one of three roles:
//
//	viewer    stat, plugin_list, as-run history, status push
//	operator  viewer plus cue, take and the other playback commands
//	admin     operator plus recover and set
package auth
