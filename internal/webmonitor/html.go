package webmonitor

const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>Facecam Monitor</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { margin: 0; font-family: system-ui, sans-serif; background: #111; color: #eee; }
        .app { max-width: 1100px; margin: 0 auto; padding: 16px; }
        .header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 12px; }
        .title { font-size: 20px; font-weight: 600; }
        .badge { padding: 4px 10px; border-radius: 10px; font-size: 12px; background: #444; }
        .badge.ok { background: #1b5e20; }
        .badge.err { background: #b71c1c; }
        .grid { display: grid; grid-template-columns: 2fr 1fr; gap: 16px; }
        .panel { background: #1c1c1c; border-radius: 8px; padding: 12px; }
        .panel h2 { font-size: 15px; margin: 0 0 10px; }
        #stream { width: 100%; height: auto; display: block; background: #000; }
        label { display: block; font-size: 13px; margin: 8px 0 4px; }
        input[type=text], input[type=number] { width: 100%; box-sizing: border-box; padding: 6px; background: #222; color: #eee; border: 1px solid #444; border-radius: 4px; }
        .buttons { display: flex; flex-wrap: wrap; gap: 6px; margin-top: 12px; }
        button { padding: 6px 12px; background: #333; color: #eee; border: 1px solid #555; border-radius: 4px; cursor: pointer; }
        button:hover { background: #444; }
        #status { margin-top: 12px; font-size: 14px; }
        pre { background: #000; padding: 8px; border-radius: 4px; font-size: 12px; max-height: 260px; overflow: auto; white-space: pre-wrap; }
        table { width: 100%; font-size: 12px; border-collapse: collapse; }
        td, th { text-align: left; padding: 2px 4px; border-bottom: 1px solid #333; }
    </style>
</head>
<body>
    <div class="app">
        <div class="header">
            <div class="title">Facecam Monitor</div>
            <span class="badge" id="state-badge">idle</span>
        </div>

        <div class="grid">
            <div class="panel">
                <h2>Live Feed</h2>
                <img id="stream" src="/stream" alt="Annotated live feed">
            </div>

            <div class="panel">
                <h2>Controls</h2>
                <label for="base-url">Detector base URL</label>
                <input type="text" id="base-url">
                <label for="interval">Interval (ms, min 200)</label>
                <input type="number" id="interval" min="200" step="50">
                <label><input type="checkbox" id="mirror"> Mirror</label>

                <div class="buttons">
                    <button type="button" id="btn-apply">Apply</button>
                    <button type="button" id="btn-health">Health</button>
                    <button type="button" id="btn-start">Start</button>
                    <button type="button" id="btn-stop">Stop</button>
                    <button type="button" id="btn-clear">Clear</button>
                </div>

                <div id="status">stopped</div>
                <pre id="output"></pre>
            </div>

            <div class="panel">
                <h2>Loop</h2>
                <table id="loop-table"></table>
            </div>

            <div class="panel">
                <h2>Recent detections</h2>
                <table id="history-table"></table>
            </div>
        </div>
    </div>

    <script>
        const $ = (id) => document.getElementById(id);

        function showStatus(st) {
            if (!st) return;
            $('status').textContent = st.message;
            $('output').textContent = st.detail || '';
            const badge = $('state-badge');
            badge.textContent = st.state;
            badge.className = 'badge' + (st.state === 'running' ? ' ok' : st.state === 'failed' ? ' err' : '');
        }

        function showConfig(cfg) {
            if (!cfg) return;
            if (document.activeElement !== $('base-url')) $('base-url').value = cfg.base_url;
            if (document.activeElement !== $('interval')) $('interval').value = cfg.interval_ms;
            $('mirror').checked = !!cfg.mirror;
        }

        function showTable(el, rows) {
            el.innerHTML = '';
            for (const row of rows) {
                const tr = document.createElement('tr');
                for (const cell of row) {
                    const td = document.createElement('td');
                    td.textContent = cell;
                    tr.appendChild(td);
                }
                el.appendChild(tr);
            }
        }

        function showPayload(p) {
            showStatus(p.status);
            showConfig(p.config);
            const loop = p.loop || {};
            showTable($('loop-table'), [
                ['source', p.source],
                ['ticks fired', loop.ticks_fired],
                ['ticks dropped', loop.ticks_dropped],
                ['requests', loop.requests_sent],
                ['detect errors', loop.detection_errors],
                ['transport errors', loop.transport_errors],
                ['in flight', loop.in_flight],
                ['last latency (ms)', loop.last_latency_ms],
                ['stream fps', (p.monitor.current_fps || 0).toFixed(1)],
            ]);
            showTable($('history-table'), (p.detection_history || []).map((ev) => [
                new Date(ev.timestamp * 1000).toLocaleTimeString(),
                'faces=' + ev.count,
                ev.faces.map((f) => (f.score * 100).toFixed(1) + '%').join(' '),
            ]));
        }

        async function call(method, path, body) {
            const opts = { method };
            if (body !== undefined) {
                opts.headers = { 'Content-Type': 'application/json' };
                opts.body = JSON.stringify(body);
            }
            try {
                const res = await fetch(path, opts);
                const data = await res.json();
                if (!res.ok && data.error) {
                    $('output').textContent = data.error;
                }
                return data;
            } catch (err) {
                $('output').textContent = String(err);
                return null;
            }
        }

        async function applyConfig() {
            const cfg = await call('POST', '/api/config', {
                base_url: $('base-url').value.trim(),
                interval_ms: parseInt($('interval').value, 10) || 0,
                mirror: $('mirror').checked,
            });
            showConfig(cfg);
        }

        $('btn-apply').onclick = applyConfig;
        $('btn-health').onclick = async () => {
            await applyConfig();
            showStatus(await call('POST', '/api/health'));
        };
        $('btn-start').onclick = async () => {
            await applyConfig();
            const data = await call('POST', '/api/camera/start');
            showStatus(data && data.status ? data.status : data);
        };
        $('btn-stop').onclick = async () => showStatus(await call('POST', '/api/camera/stop'));
        $('btn-clear').onclick = async () => showStatus(await call('POST', '/api/overlay/clear'));

        function connectStatus() {
            const source = new EventSource('/api/status/stream');
            source.onmessage = (evt) => showPayload(JSON.parse(evt.data));
            source.onerror = () => {
                source.close();
                setTimeout(connectStatus, 2000);
            };
        }

        call('GET', '/api/status').then((p) => p && showPayload(p));
        connectStatus();
    </script>
</body>
</html>
`
