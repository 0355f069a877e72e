package wrapper

// python3Driver is the driver script materialized as a jailed child's
// `code` for Evaluate mode on the "python3" template. It reads
// `[code, globalsIn]` as JSON from stdin, executes code against a
// namespace seeded with globalsIn, silences the child's own stdout so user
// prints can't corrupt the return channel, and writes the resulting
// globals back through a JSON-safe sieve mirroring wrapper.JSONSafe.
const python3Driver = `
import json
import sys


def _json_safe(value):
    if value is None or isinstance(value, (bool, int, float, str)):
        try:
            json.dumps(value, allow_nan=False)
            if isinstance(value, str):
                value.encode("utf-8")
            return True, value
        except (TypeError, ValueError):
            return False, None
    if isinstance(value, bytes):
        try:
            return True, value.decode("utf-8")
        except UnicodeDecodeError:
            return False, None
    if isinstance(value, (list, tuple)):
        out = []
        for item in value:
            ok, safe = _json_safe(item)
            if ok:
                out.append(safe)
        return True, out
    if isinstance(value, dict):
        out = {}
        for k, v in value.items():
            if k == "__builtins__" or not isinstance(k, str):
                continue
            try:
                k.encode("utf-8")
            except (TypeError, ValueError):
                # e.g. an unpaired surrogate from a lone \ud800-\udfff
                # codepoint -- valid as a Python str, not encodable as
                # UTF-8 text.
                continue
            ok, safe = _json_safe(v)
            if ok:
                out[k] = safe
        return True, out
    return False, None


def main():
    payload = json.loads(sys.stdin.read())
    code, globals_in = payload[0], payload[1]

    real_stdout = sys.stdout
    sys.stdout = open("/dev/null", "w")

    namespace = dict(globals_in)
    try:
        exec(code, namespace)
    finally:
        sys.stdout = real_stdout

    _, safe_globals = _json_safe(namespace)
    json.dump(safe_globals, real_stdout)


if __name__ == "__main__":
    main()
`
