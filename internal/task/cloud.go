package task

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"taskctl/internal/param"
)

var ErrUnsupportedProvider = errors.New("task: unsupported cloud provider")

type authParam struct {
	key      string
	kind     param.Kind
	def      string
	allowed  []string
	advanced bool
}

// Provider describes one rclone remote type and the auth settings it takes.
type Provider struct {
	Key  string
	Name string
	Type string

	params []authParam
}

func str(key, def string, allowed ...string) authParam {
	return authParam{key: key, kind: param.KindString, def: def, allowed: allowed}
}

func flag(key string, def bool) authParam {
	return authParam{key: key, kind: param.KindBool, def: strconv.FormatBool(def)}
}

func num(key string, def int64) authParam {
	return authParam{key: key, kind: param.KindInt, def: strconv.FormatInt(def, 10)}
}

func adv(p authParam) authParam { p.advanced = true; return p }

func s3Params(provider string) []authParam {
	return []authParam{
		str("provider", provider),
		flag("env_auth", false),
		str("access_key_id", ""),
		str("secret_access_key", ""),
		str("region", "", "", "other-v2-signature"),
		str("endpoint", ""),
		str("location_constraint", ""),
		str("acl", "private", "private", "public-read", "public-read-write", "authenticated-read", "bucket-owner-read", "bucket-owner-full-control"),
		adv(str("upload_cutoff", "200Mi")),
		adv(str("chunk_size", "5Mi")),
		adv(num("upload_concurrency", 4)),
		adv(flag("force_path_style", true)),
		adv(num("list_chunk", 1000)),
	}
}

var providers = map[string]Provider{
	"s3-AWS":    {Key: "s3-AWS", Name: "Amazon S3", Type: "s3", params: s3Params("AWS")},
	"s3-Wasabi": {Key: "s3-Wasabi", Name: "Wasabi", Type: "s3", params: s3Params("Wasabi")},
	"b2": {Key: "b2", Name: "Backblaze B2", Type: "b2", params: []authParam{
		str("account", ""),
		str("key", ""),
		flag("hard_delete", false),
		adv(str("upload_cutoff", "200Mi")),
		adv(str("chunk_size", "96Mi")),
	}},
	"dropbox": {Key: "dropbox", Name: "Dropbox", Type: "dropbox", params: []authParam{
		str("client_id", ""),
		str("client_secret", ""),
		adv(str("chunk_size", "48Mi")),
		adv(str("batch_mode", "off", "off", "sync", "async")),
	}},
	"drive": {Key: "drive", Name: "Google Drive", Type: "drive", params: []authParam{
		str("client_id", ""),
		str("client_secret", ""),
		str("scope", "drive", "drive", "drive.readonly", "drive.file", "drive.appfolder", "drive.metadata.readonly"),
		str("root_folder_id", ""),
		str("service_account_file", ""),
		adv(flag("use_trash", true)),
		adv(str("chunk_size", "8Mi")),
	}},
	"google cloud storage": {Key: "google cloud storage", Name: "Google Cloud", Type: "google cloud storage", params: []authParam{
		str("client_id", ""),
		str("client_secret", ""),
		str("project_number", ""),
		str("service_account_file", ""),
		flag("anonymous", false),
		str("object_acl", "", "", "authenticatedRead", "bucketOwnerFullControl", "bucketOwnerRead", "private", "projectPrivate", "publicRead"),
		str("storage_class", "", "", "MULTI_REGIONAL", "REGIONAL", "NEARLINE", "COLDLINE", "ARCHIVE", "DURABLE_REDUCED_AVAILABILITY"),
	}},
	"onedrive": {Key: "onedrive", Name: "Microsoft OneDrive", Type: "onedrive", params: []authParam{
		str("client_id", ""),
		str("client_secret", ""),
		str("region", "global", "global", "us", "de", "cn"),
		adv(str("chunk_size", "10Mi")),
		adv(str("drive_type", "personal", "personal", "business", "documentLibrary")),
	}},
	"azureblob": {Key: "azureblob", Name: "Microsoft Azure Blob", Type: "azureblob", params: []authParam{
		str("account", ""),
		str("key", ""),
		str("sas_url", ""),
		flag("use_msi", false),
		adv(str("chunk_size", "4Mi")),
		adv(num("list_chunk", 5000)),
	}},
}

// Providers returns all known cloud providers sorted by key.
func Providers() []Provider {
	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// LookupProvider resolves a remote type. S3 remotes are keyed by their
// vendor ("s3" + "AWS" -> "s3-AWS").
func LookupProvider(remoteType, s3Provider string) (Provider, error) {
	key := remoteType
	if remoteType == "s3" {
		key = "s3-" + s3Provider
		if p, ok := providers[key]; ok {
			return p, nil
		}
		return Provider{}, fmt.Errorf("%w: s3 provider %q", ErrUnsupportedProvider, s3Provider)
	}
	if p, ok := providers[key]; ok {
		return p, nil
	}
	return Provider{}, fmt.Errorf("%w: remote type %q", ErrUnsupportedProvider, remoteType)
}

// CloudAuthSchema builds the "auth" parameter group for a remote.
// Advanced settings are included only when advanced is true.
func CloudAuthSchema(remoteType, s3Provider string, advanced bool) (*param.Node, error) {
	p, err := LookupProvider(remoteType, s3Provider)
	if err != nil {
		return nil, err
	}
	auth := param.Group("Auth", "auth")
	for _, ap := range p.params {
		if ap.advanced && !advanced {
			continue
		}
		var n *param.Node
		switch ap.kind {
		case param.KindBool:
			n = param.Bool(ap.key, ap.key, ap.def == "true")
		case param.KindInt:
			v, _ := strconv.ParseInt(ap.def, 10, 64)
			n = param.Int(ap.key, ap.key, v)
		default:
			if len(ap.allowed) > 0 {
				choices := make([]param.Option, 0, len(ap.allowed))
				for _, a := range ap.allowed {
					choices = append(choices, param.Option{Value: a, Label: a})
				}
				n = param.Selection(ap.key, ap.key, ap.def, choices...)
			} else {
				n = param.String(ap.key, ap.key, ap.def)
			}
		}
		auth.Add(n)
	}
	return auth, nil
}
