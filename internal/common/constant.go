package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// LocalIDPrefix marks ids generated on the device before the server
// has confirmed the record.
const LocalIDPrefix = "localrecord_"
